// Command client follows a pool server's state stream and logs every state it
// reconstructs.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/simpleswap-go/cmd/client/config"
	"github.com/defistate/simpleswap-go/logging"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/client"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rootLogger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	close := func() {
		os.Exit(1)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateOps, err := stateops.NewStateOps(rootLogger, prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		close()
	}

	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:          cfg.StateStreamURL,
			Logger:       rootLogger.With("component", "jsonrpc-client"),
			BufferSize:   cfg.BufferSize,
			StatePatcher: stateOps.Patch,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.StateStreamURL, "error", err)
		close()
	}

	for {
		select {
		case state := <-client.State():
			rootLogger.Info("pool state",
				"sequence", state.Sequence,
				"pool", state.Pool.Address,
				"reserve0", state.Pool.Reserve0,
				"reserve1", state.Pool.Reserve1,
				"share_supply", state.Pool.ShareSupply,
			)
		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
