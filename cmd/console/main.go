// Command console is an interactive terminal for a pool server: it follows
// the state stream and sends swaps and liquidity changes over JSON-RPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/simpleswap-go/cmd/client/config"
	"github.com/defistate/simpleswap-go/logging"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/client"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	account := flag.String("account", "", "Address to act as for swaps and liquidity changes.")
	flag.Parse()

	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(logFile, nil)).Error("Failed to load configuration", "error", err)
		closeApp()
	}
	rootLogger := logging.New(logFile, cfg.Log.Level, cfg.Log.Format)

	if *account != "" && !common.IsHexAddress(*account) {
		rootLogger.Error("Invalid account", "account", *account)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE CLIENTS ---
	stateOps, err := stateops.NewStateOps(rootLogger, prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		closeApp()
	}

	stream, err := client.NewClient(
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
		closeApp()
	}

	poolClient, err := client.DialPool(ctx, cfg.RPCURL)
	if err != nil {
		rootLogger.Error("Failed to dial pool server", "url", cfg.RPCURL, "error", err)
		closeApp()
	}
	defer poolClient.Close()

	// --- 4. START CONSOLE & STATE LOOP ---
	safeState := &SafeState{}
	console := NewConsole(os.Stdin, os.Stdout, poolClient, safeState, common.HexToAddress(*account))
	if err := console.LoadTokens(ctx); err != nil {
		rootLogger.Warn("Failed to load token metadata", "error", err)
	}

	fmt.Println(Green + "Starting SimpleSwap Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")

	done := make(chan struct{})
	go func() {
		console.Run(ctx)
		close(done)
	}()

	for {
		select {
		case n := <-stream.State():
			safeState.Update(n)

		case err := <-stream.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-done:
			return

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}
