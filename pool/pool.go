// Package pool implements a two-asset constant-product pool: it custodies two
// fungible assets, issues shares to liquidity providers and prices swaps with
// a fixed 0.3% fee.
//
// The pool never owns balances itself. Custody lives in the injected Asset
// capabilities, shares live in the injected ShareLedger, and every entry point
// runs inside the injected Host's atomic boundary. The pool only keeps a cached
// copy of its two reserves, resynchronized from the assets as the last step of
// every mutating operation.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/defistate/simpleswap-go/protocols/simpleswap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opAddLiquidity    = "add_liquidity"
	opRemoveLiquidity = "remove_liquidity"
	opSimpleSwap      = "simple_swap"
)

// Config holds all the dependencies and settings for a Pool.
type Config struct {
	// Address is the pool's custody address. If zero it is derived from the
	// two asset references with DeriveAddress.
	Address common.Address
	Asset0  common.Address
	Asset1  common.Address

	Assets   AssetResolver
	Shares   ShareLedger
	Host     Host
	Logger   Logger
	Registry prometheus.Registerer // optional; nil disables metrics
}

func (c *Config) validate() error {
	if c.Asset0 == (common.Address{}) || c.Asset1 == (common.Address{}) {
		return fmt.Errorf("%w: config: both asset references are required", ErrInvalidConfig)
	}
	if c.Asset0 == c.Asset1 {
		return fmt.Errorf("%w: config: asset references must differ, got %s twice", ErrInvalidConfig, c.Asset0.Hex())
	}
	if c.Assets == nil {
		return fmt.Errorf("%w: config: Assets resolver is required", ErrInvalidConfig)
	}
	if c.Shares == nil {
		return fmt.Errorf("%w: config: Shares ledger is required", ErrInvalidConfig)
	}
	if c.Host == nil {
		return fmt.Errorf("%w: config: Host is required", ErrInvalidConfig)
	}
	if c.Logger == nil {
		return fmt.Errorf("%w: config: Logger is required", ErrInvalidConfig)
	}
	return nil
}

// Pool is a two-asset constant-product market maker.
type Pool struct {
	address   common.Address
	asset0Ref common.Address
	asset1Ref common.Address
	asset0    Asset
	asset1    Asset
	shares    ShareLedger
	host      Host
	logger    Logger
	metrics   *Metrics

	// mu guards the cached reserves only. It is never held across a
	// collaborator call; writers are serialized by Host.Atomic.
	mu       sync.RWMutex
	reserve0 uint256.Int
	reserve1 uint256.Int
}

// New resolves both assets once and returns a pool with zero cached reserves.
// Balances the pool address already holds are picked up by the first
// mutating operation's resynchronization.
func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	asset0, err := cfg.Assets.Resolve(cfg.Asset0)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving asset0 %s: %w", ErrInvalidConfig, cfg.Asset0.Hex(), err)
	}
	asset1, err := cfg.Assets.Resolve(cfg.Asset1)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving asset1 %s: %w", ErrInvalidConfig, cfg.Asset1.Hex(), err)
	}

	address := cfg.Address
	if address == (common.Address{}) {
		address = DeriveAddress(cfg.Asset0, cfg.Asset1)
	}

	p := &Pool{
		address:   address,
		asset0Ref: cfg.Asset0,
		asset1Ref: cfg.Asset1,
		asset0:    asset0,
		asset1:    asset1,
		shares:    cfg.Shares,
		host:      cfg.Host,
		logger:    cfg.Logger,
	}
	if cfg.Registry != nil {
		p.metrics = NewMetrics(cfg.Registry, address.Hex())
	}

	p.logger.Info("pool created", "address", address.Hex(), "asset0", cfg.Asset0.Hex(), "asset1", cfg.Asset1.Hex())
	return p, nil
}

// Address returns the pool's custody address.
func (p *Pool) Address() common.Address { return p.address }

// Asset0 returns the reference of the first pooled asset.
func (p *Pool) Asset0() common.Address { return p.asset0Ref }

// Asset1 returns the reference of the second pooled asset.
func (p *Pool) Asset1() common.Address { return p.asset1Ref }

// Reserves returns copies of the cached reserves.
func (p *Pool) Reserves() (reserve0, reserve1 *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(&p.reserve0), new(uint256.Int).Set(&p.reserve1)
}

// ShareSupply returns the outstanding shares as reported by the share ledger.
func (p *Pool) ShareSupply() *uint256.Int {
	return p.shares.TotalSupply()
}

// ShareBalance returns holder's shares as reported by the share ledger.
func (p *Pool) ShareBalance(holder common.Address) *uint256.Int {
	return p.shares.BalanceOf(holder)
}

// Snapshot returns the serializable view of the pool.
func (p *Pool) Snapshot() simpleswap.Pool {
	reserve0, reserve1 := p.Reserves()
	return simpleswap.Pool{
		Address:     p.address,
		Token0:      p.asset0Ref,
		Token1:      p.asset1Ref,
		Reserve0:    reserve0.ToBig(),
		Reserve1:    reserve1.ToBig(),
		ShareSupply: p.ShareSupply().ToBig(),
		FeeBps:      simpleswap.FeeBps,
	}
}

// sync overwrites the cached reserves with the pool's true custodied balances.
func (p *Pool) sync() {
	balance0 := p.asset0.BalanceOf(p.address)
	balance1 := p.asset1.BalanceOf(p.address)
	p.setReserves(balance0, balance1)
}

func (p *Pool) setReserves(reserve0, reserve1 *uint256.Int) {
	p.mu.Lock()
	p.reserve0.Set(reserve0)
	p.reserve1.Set(reserve1)
	p.mu.Unlock()
}

// execute runs fn inside the host's atomic boundary. On failure the host
// reverts collaborator state and the cached reserves are put back.
func (p *Pool) execute(operation string, fn func() error) error {
	start := time.Now()

	err := p.host.Atomic(func() error {
		reserve0, reserve1 := p.Reserves()
		if err := fn(); err != nil {
			p.setReserves(reserve0, reserve1)
			return err
		}
		return nil
	})

	if p.metrics != nil {
		p.metrics.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		p.metrics.observeOperation(operation, err)
		if err == nil {
			reserve0, reserve1 := p.Reserves()
			p.metrics.observeReserves(p.asset0Ref.Hex(), p.asset1Ref.Hex(), reserve0, reserve1, p.ShareSupply())
		}
	}
	return err
}

// pull moves amount of asset from the caller into custody. The pool acts as
// spender, so the caller must have approved it beforehand.
func (p *Pool) pull(asset Asset, from common.Address, amount *uint256.Int) error {
	if err := asset.TransferFrom(p.address, from, p.address, amount); err != nil {
		return fmt.Errorf("%w: pulling %s from %s: %w", ErrExternalTransferFailure, amount.Dec(), from.Hex(), err)
	}
	return nil
}

// push moves amount of asset out of custody to the recipient.
func (p *Pool) push(asset Asset, to common.Address, amount *uint256.Int) error {
	if err := asset.Transfer(p.address, to, amount); err != nil {
		return fmt.Errorf("%w: sending %s to %s: %w", ErrExternalTransferFailure, amount.Dec(), to.Hex(), err)
	}
	return nil
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}
