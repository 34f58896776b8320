package patcher

import (
	"fmt"

	"github.com/defistate/simpleswap-go/differ"
	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
)

// PoolPatcherFunc applies a pool diff to a previous pool view.
//
// Implementations MUST NOT mutate prevState; they must return a copy.
type PoolPatcherFunc func(prevState simpleswap.Pool, diff simpleswap.PoolDiff) (simpleswap.Pool, error)

type StatePatcherConfig struct {
	// PoolPatcher defaults to simpleswap.Patcher.
	PoolPatcher PoolPatcherFunc
}

// StatePatcher rebuilds states from a previous state and a diff.
type StatePatcher struct {
	poolPatcher PoolPatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	poolPatcher := cfg.PoolPatcher
	if poolPatcher == nil {
		poolPatcher = simpleswap.Patcher
	}
	return &StatePatcher{poolPatcher: poolPatcher}, nil
}

// Patch creates a new State by applying diff to oldState. oldState is never modified.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence, diff.FromSequence)
	}
	if oldState.Schema != diff.Schema {
		return nil, fmt.Errorf("patcher: schema mismatch (old=%s, diff=%s)", oldState.Schema, diff.Schema)
	}

	pool, err := p.poolPatcher(oldState.Pool, diff.Pool)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch pool %s: %w", oldState.Pool.Address.Hex(), err)
	}

	return &engine.State{
		Sequence:  diff.ToSequence,
		Timestamp: diff.Timestamp,
		Schema:    diff.Schema,
		Pool:      pool,
	}, nil
}
