package differ

import (
	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff represents a summary of changes from FromSequence to ToSequence.
type StateDiff struct {
	Timestamp    uint64              `json:"timestamp"`
	FromSequence uint64              `json:"fromSequence"`
	ToSequence   uint64              `json:"toSequence"`
	Schema       engine.Schema       `json:"schema"`
	Pool         simpleswap.PoolDiff `json:"pool"`
}
