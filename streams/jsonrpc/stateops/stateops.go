package stateops

import (
	"github.com/defistate/simpleswap-go/differ"
	"github.com/defistate/simpleswap-go/patcher"
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps bundles the two halves of the state stream:
// the Differ used by the server to produce diffs and the Patcher used by a
// client to rebuild the present from them.
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		PoolDiffer: simpleswap.Differ,
		Registry:   prometheusRegistry,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		PoolPatcher: simpleswap.Patcher,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}
