package differ

import (
	"errors"
	"fmt"

	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolDiffer computes the diff between two pool views.
type PoolDiffer func(old, new simpleswap.Pool) (simpleswap.PoolDiff, error)

// StateDifferConfig holds the differ function and dependencies.
type StateDifferConfig struct {
	// PoolDiffer defaults to simpleswap.Differ.
	PoolDiffer PoolDiffer
	Registry   prometheus.Registerer // required for metrics
	Logger     Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer turns consecutive states into diffs.
type StateDiffer struct {
	metrics    *Metrics
	logger     Logger
	poolDiffer PoolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolDiffer := cfg.PoolDiffer
	if poolDiffer == nil {
		poolDiffer = simpleswap.Differ
	}

	return &StateDiffer{
		metrics:    NewMetrics(cfg.Registry),
		logger:     cfg.Logger,
		poolDiffer: poolDiffer,
	}, nil
}

// Diff compares two error-free states of the same pool. new must come after old.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration)
	defer timer.ObserveDuration()

	diff, err := d.diff(old, new)
	switch {
	case err != nil:
		d.metrics.diffsTotal.WithLabelValues("error").Inc()
		d.logger.Warn("state diff failed", "from", old.Sequence, "to", new.Sequence, "error", err)
	case diff.Pool.IsEmpty():
		d.metrics.diffsTotal.WithLabelValues("empty").Inc()
	default:
		d.metrics.diffsTotal.WithLabelValues("changed").Inc()
	}
	return diff, err
}

func (d *StateDiffer) diff(old, new *engine.State) (*StateDiff, error) {
	if old.HasErrors() || new.HasErrors() {
		return nil, errors.New("StateDiffer received view with error")
	}
	if old.Schema != new.Schema {
		return nil, fmt.Errorf("schema changed from %q to %q", old.Schema, new.Schema)
	}
	if new.Sequence <= old.Sequence {
		return nil, fmt.Errorf("sequence %d does not follow %d", new.Sequence, old.Sequence)
	}

	poolDiff, err := d.poolDiffer(old.Pool, new.Pool)
	if err != nil {
		return nil, err
	}

	return &StateDiff{
		Timestamp:    new.Timestamp,
		FromSequence: old.Sequence,
		ToSequence:   new.Sequence,
		Schema:       new.Schema,
		Pool:         poolDiff,
	}, nil
}
