package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/audit"
	"github.com/milow-app/milow-functions/config"
	"github.com/milow-app/milow-functions/httpapi"
	"github.com/milow-app/milow-functions/integrity"
	"github.com/milow-app/milow-functions/jwks"
	"github.com/milow-app/milow-functions/metrics"
	"github.com/milow-app/milow-functions/oauth2"
	"github.com/milow-app/milow-functions/push"
	"github.com/milow-app/milow-functions/secret"
	"github.com/milow-app/milow-functions/supabase"
	"github.com/milow-app/milow-functions/user"
	"github.com/milow-app/milow-functions/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func cmdServe(load func() (*config.Config, error)) *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the functions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Log, os.Stderr)
			slog.SetDefault(logger)
			gin.SetMode(gin.ReleaseMode)

			app, err := newApp(cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Server, app.handler, logger)
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return c
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for up to the shutdown timeout.
func serve(ctx context.Context, sc config.ServerConfig, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              sc.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", sc.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", sc.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app is the wired service graph.
type app struct {
	handler http.Handler
	client  *milow.Client
	audit   *audit.Logger
}

func (a *app) Close() error {
	err := a.client.Close()
	if a.audit != nil {
		err = errors.Join(err, a.audit.Close())
	}
	return err
}

func newApp(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	m := metrics.New(false)
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.NewWithRegistry(reg)
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	var auditor *audit.Logger
	if cfg.Audit.Enabled {
		auditor = audit.New(cfg.Audit.BufferSize, audit.WithSlogHandler(logger))
	}

	sb := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.ServiceRoleKey,
		supabase.WithLogger(logger),
	)

	var verifier milow.TokenVerifier = sb
	if cfg.Supabase.Verifier == config.VerifierJWKS {
		verifier = jwks.NewVerifier(cfg.Supabase.JWKSURL,
			jwks.WithAudience(cfg.Supabase.Audience),
			jwks.WithLogger(logger),
			jwks.WithMetrics(m),
		)
	}

	exOpts := []oauth2.Option{oauth2.WithLogger(logger), oauth2.WithMetrics(m)}
	if cfg.Google.TokenURL != "" {
		exOpts = append(exOpts, oauth2.WithTokenURL(cfg.Google.TokenURL))
	}
	exchanger := oauth2.NewExchanger(exOpts...)
	secrets := cfg.Secrets()

	var googleTokens milow.TokenSource = oauth2.NewServiceAccountSource(secrets, secret.GoogleServiceAccountKey, oauth2.ScopePlayIntegrity, exchanger)
	if cfg.Google.TokenCache {
		googleTokens = oauth2.NewCachedSource(googleTokens, oauth2.WithCacheMetrics(m))
	}

	icOpts := []integrity.ClientOption{integrity.WithClientLogger(logger)}
	if cfg.Google.IntegrityBaseURL != "" {
		icOpts = append(icOpts, integrity.WithBaseURL(cfg.Google.IntegrityBaseURL))
	}
	decoder := integrity.NewClient(googleTokens, icOpts...)

	client, err := milow.NewClient(
		milow.Config{PackageName: cfg.Google.PackageName, BackendURL: cfg.Supabase.URL},
		milow.WithLogger(logger),
		milow.WithTokenVerifier(verifier),
		milow.WithIntegrityDecoder(decoder),
		milow.WithGoogleTokenSource(googleTokens),
	)
	if err != nil {
		return nil, err
	}

	pushOpts := []push.Option{push.WithLogger(logger)}
	if cfg.Push.BaseURL != "" {
		pushOpts = append(pushOpts, push.WithBaseURL(cfg.Push.BaseURL))
	}

	h := httpapi.NewRouter(httpapi.Deps{
		Client: client,
		Users: user.New(sb,
			user.WithRedirectURL(sb.RedirectURL()),
			user.WithLogger(logger),
			user.WithMetrics(m),
			user.WithAudit(auditor),
		),
		Integrity: integrity.NewService(decoder, client.Config().PackageName,
			integrity.WithLogger(logger),
			integrity.WithMetrics(m),
			integrity.WithAudit(auditor),
		),
		Releases: webhook.NewReleases(sb,
			push.ServiceAccountConnector(secrets, secret.FirebaseServiceAccount, exchanger, pushOpts...),
			webhook.WithLogger(logger),
			webhook.WithMetrics(m),
			webhook.WithAudit(auditor),
			webhook.WithMaxConcurrency(cfg.Push.MaxConcurrency),
		),
		MetricsHandler: metricsHandler,
	}, httpapi.Options{
		WebhookSecret: cfg.Webhook.Secret,
		Logger:        logger,
		Metrics:       m,
	})

	return &app{handler: h, client: client, audit: auditor}, nil
}
