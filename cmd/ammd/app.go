package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/defistate/simpleswap-go/cmd/ammd/config"
	"github.com/defistate/simpleswap-go/ledger"
	"github.com/defistate/simpleswap-go/pool"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/server"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// app is a fully wired daemon: ledger, pool and the RPC server in front of them.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	ledger   *ledger.State
	pool     *pool.Pool
	server   *server.Server
}

func build(cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	state := ledger.NewState()
	deploy := func(tc config.TokenConfig) (*ledger.Token, error) {
		addr, err := config.ParseAddress(tc.Address)
		if err != nil {
			return nil, err
		}
		return state.Deploy(ledger.TokenMeta{
			Address:  addr,
			Name:     tc.Name,
			Symbol:   tc.Symbol,
			Decimals: tc.Decimals,
		})
	}

	token0, err := deploy(cfg.Pool.Asset0)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy asset0: %w", err)
	}
	token1, err := deploy(cfg.Pool.Asset1)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy asset1: %w", err)
	}
	shares, err := deploy(cfg.Pool.Shares)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy share token: %w", err)
	}

	var poolAddr common.Address
	if cfg.Pool.Address != "" {
		if poolAddr, err = config.ParseAddress(cfg.Pool.Address); err != nil {
			return nil, err
		}
	}

	p, err := pool.New(pool.Config{
		Address: poolAddr,
		Asset0:  token0.Address(),
		Asset1:  token1.Address(),
		Assets: pool.ResolverFunc(func(ref common.Address) (pool.Asset, error) {
			tok, err := state.Token(ref)
			if err != nil {
				return nil, err
			}
			return tok, nil
		}),
		Shares:   shares,
		Host:     state,
		Logger:   logger.With("component", "pool"),
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := allocate(cfg.Genesis, token0, token1, p.Address()); err != nil {
		return nil, err
	}

	if l := cfg.Liquidity; l != nil {
		if err := seed(p, l, logger); err != nil {
			return nil, fmt.Errorf("failed to seed initial liquidity: %w", err)
		}
	}

	ops, err := stateops.NewStateOps(logger.With("component", "stateops"), registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create state ops: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Pool:       p,
		Tokens:     state,
		Differ:     ops,
		Registry:   registry,
		Logger:     logger.With("component", "jsonrpc-server"),
		BufferSize: cfg.Stream.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		ledger:   state,
		pool:     p,
		server:   srv,
	}, nil
}

// allocate credits genesis balances and, where asked, grants the pool an
// unlimited allowance. It runs before the server accepts traffic.
func allocate(allocs []config.Allocation, token0, token1 *ledger.Token, poolAddr common.Address) error {
	unlimited := new(uint256.Int).SetAllOne()
	for i, alloc := range allocs {
		account, err := config.ParseAddress(alloc.Account)
		if err != nil {
			return fmt.Errorf("genesis[%d].account: %w", i, err)
		}
		amount0, err := config.ParseAmount(alloc.Asset0)
		if err != nil {
			return fmt.Errorf("genesis[%d].asset0: %w", i, err)
		}
		amount1, err := config.ParseAmount(alloc.Asset1)
		if err != nil {
			return fmt.Errorf("genesis[%d].asset1: %w", i, err)
		}

		if err := token0.Mint(account, amount0); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if err := token1.Mint(account, amount1); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if !alloc.ApprovePool {
			continue
		}
		for _, tok := range []*ledger.Token{token0, token1} {
			if err := tok.Approve(account, poolAddr, unlimited); err != nil {
				return fmt.Errorf("genesis[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// seed makes the configured first deposit.
func seed(p *pool.Pool, l *config.SeedLiquidity, logger *slog.Logger) error {
	provider, err := config.ParseAddress(l.Provider)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	amount0, err := config.ParseAmount(l.Amount0)
	if err != nil {
		return fmt.Errorf("amount0: %w", err)
	}
	amount1, err := config.ParseAmount(l.Amount1)
	if err != nil {
		return fmt.Errorf("amount1: %w", err)
	}
	minted, err := p.AddLiquidity(provider, amount0, amount1)
	if err != nil {
		return err
	}
	logger.Info("seeded initial liquidity", "provider", provider, "shares", minted.Dec())
	return nil
}

// handler routes JSON-RPC over HTTP at "/", WebSocket at "/ws" and metrics at "/metrics".
func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", a.server.HTTPHandler())
	mux.Handle("/ws", a.server.WebsocketHandler(a.cfg.Stream.AllowedOrigins))
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	return mux
}

// serve blocks until ctx is cancelled or the listener fails.
func (a *app) serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.ListenAddr, "pool", a.pool.Address())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.server.Stop()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	a.server.Stop()
	return err
}
