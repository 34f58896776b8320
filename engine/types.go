package engine

import (
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
)

// Schema is the decode contract for State.Pool.
type Schema string

// PoolSchema identifies the current pool view layout.
const PoolSchema Schema = "simpleswap/pool@v1"

// State is the main data structure broadcast to subscribers.
type State struct {
	// Sequence counts successful pool mutations. It starts at 0 for the
	// state observed before any mutation and increases by one per mutation.
	Sequence uint64 `json:"sequence"`
	// Timestamp is the Unix nanosecond time the state was captured.
	Timestamp uint64          `json:"timestamp"`
	Schema    Schema          `json:"schema"`
	Pool      simpleswap.Pool `json:"pool"`

	// Error is populated if the producer failed to capture this state.
	Error string `json:"error,omitempty"`
}

func (state *State) HasErrors() bool {
	return state.Error != ""
}

// Clone returns a deep copy of the state.
func (state *State) Clone() *State {
	c := *state
	c.Pool = state.Pool.Clone()
	return &c
}
