package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/milow-app/milow-functions/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "milow",
		Short:         "Milow backend functions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file (optional; environment variables override it)")

	load := func() (*config.Config, error) { return config.Load(cfgPath) }
	root.AddCommand(cmdServe(load), cmdToken(load))
	return root
}

// newLogger builds the process logger from the log settings.
func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
