// Command ammd runs a single constant-product pool over an in-memory ledger
// and serves it over JSON-RPC with a live state stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/simpleswap-go/cmd/ammd/config"
	"github.com/defistate/simpleswap-go/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ammd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "ammd.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(cfg, logger)
	if err != nil {
		return err
	}
	return a.serve(ctx)
}
