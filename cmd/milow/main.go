// Command milow hosts the Milow backend functions as a single HTTP service.
//
//	milow serve --config milow.yaml
//	milow token --scope https://www.googleapis.com/auth/playintegrity
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "milow:", err)
		os.Exit(1)
	}
}
