// Package server exposes a pool over go-ethereum JSON-RPC and streams its
// state to subscribers: one full state on subscribe, then one diff after
// every successful mutation.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/defistate/simpleswap-go/differ"
	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/ledger"
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
	"github.com/defistate/simpleswap-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pool is the pool surface the server exposes.
type Pool interface {
	AddLiquidity(caller common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error)
	RemoveLiquidity(caller common.Address, shares *uint256.Int) (amount0, amount1 *uint256.Int, err error)
	SimpleSwap(caller, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	Quote(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	QuoteIn(tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error)
	GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error)
	GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error)
	Snapshot() simpleswap.Pool
}

// Tokens is the ledger surface used for asset-level calls. Writes go through
// Atomic so they never interleave with a running pool operation.
type Tokens interface {
	Token(addr common.Address) (*ledger.Token, error)
	Tokens() []ledger.TokenMeta
	Atomic(fn func() error) error
}

// StateDiffer computes the diff between two consecutive states.
type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// Config holds all the dependencies and settings for a Server.
type Config struct {
	Pool     Pool
	Tokens   Tokens
	Differ   StateDiffer
	Registry prometheus.Registerer
	Logger   Logger
	// BufferSize is the number of events queued per subscriber. A subscriber
	// whose queue is full has its backlog replaced by one full state.
	BufferSize uint
}

func (c *Config) validate() error {
	if c.Pool == nil {
		return errors.New("config: Pool is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

// Server owns the RPC endpoint and the state stream.
type Server struct {
	pool       Pool
	tokens     Tokens
	differ     StateDiffer
	logger     Logger
	metrics    *metrics
	bufferSize uint
	rpc        *rpc.Server

	// mu serializes mutations with publishing, so diffs follow the order in
	// which mutations committed. It also guards state and subscribers.
	mu          sync.Mutex
	state       *engine.State
	subscribers map[rpc.ID]chan *jsonrpc.SubscriptionEvent
}

// NewServer constructs a server and registers the API under jsonrpc.Namespace.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		pool:        cfg.Pool,
		tokens:      cfg.Tokens,
		differ:      cfg.Differ,
		logger:      cfg.Logger,
		metrics:     newMetrics(cfg.Registry),
		bufferSize:  cfg.BufferSize,
		rpc:         rpc.NewServer(),
		subscribers: make(map[rpc.ID]chan *jsonrpc.SubscriptionEvent),
	}
	s.state = s.capture(0)

	if err := s.rpc.RegisterName(jsonrpc.Namespace, &API{s: s}); err != nil {
		return nil, fmt.Errorf("failed to register API: %w", err)
	}
	return s, nil
}

// RPC returns the underlying RPC server, e.g. for rpc.DialInProc.
func (s *Server) RPC() *rpc.Server {
	return s.rpc
}

// HTTPHandler serves JSON-RPC over HTTP POST. Subscriptions need WebsocketHandler.
func (s *Server) HTTPHandler() http.Handler {
	return s.rpc
}

// WebsocketHandler serves JSON-RPC, including subscriptions, over WebSocket.
func (s *Server) WebsocketHandler(allowedOrigins []string) http.Handler {
	return s.rpc.WebsocketHandler(allowedOrigins)
}

// Stop closes all connections and ends every subscription.
func (s *Server) Stop() {
	s.rpc.Stop()
}

// State returns a copy of the last published state.
func (s *Server) State() *engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Server) capture(sequence uint64) *engine.State {
	return &engine.State{
		Sequence:  sequence,
		Timestamp: uint64(time.Now().UnixNano()),
		Schema:    engine.PoolSchema,
		Pool:      s.pool.Snapshot(),
	}
}

// mutate runs fn and, if it succeeds, publishes the resulting state.
func (s *Server) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return jsonrpc.EncodeError(err)
	}
	s.publishLocked()
	return nil
}

func (s *Server) publishLocked() {
	next := s.capture(s.state.Sequence + 1)
	diff, err := s.differ.Diff(s.state, next)
	s.state = next
	if err != nil {
		// subscribers resync from a full state rather than miss a step
		s.logger.Error("failed to diff state, sending full state", "sequence", next.Sequence, "error", err)
		s.broadcastLocked(jsonrpc.EventTypeFull, next)
		return
	}
	s.broadcastLocked(jsonrpc.EventTypeDiff, diff)
}

func (s *Server) broadcastLocked(eventType string, payload any) {
	if len(s.subscribers) == 0 {
		return
	}
	event, err := newEvent(eventType, payload)
	if err != nil {
		s.logger.Error("failed to encode stream event", "type", eventType, "error", err)
		return
	}
	var resync *jsonrpc.SubscriptionEvent
	for id, ch := range s.subscribers {
		select {
		case ch <- event:
			s.metrics.events.WithLabelValues(eventType).Inc()
			continue
		default:
		}

		// The backlog is stale once the subscriber falls this far behind;
		// replace it with the current full state so its chain stays unbroken.
		if resync == nil {
			if resync, err = newEvent(jsonrpc.EventTypeFull, s.state); err != nil {
				s.logger.Error("failed to encode resync event", "error", err)
				return
			}
		}
		dropped := drain(ch)
		ch <- resync
		s.metrics.events.WithLabelValues(jsonrpc.EventTypeFull).Inc()
		s.logger.Warn("subscriber too slow, resyncing from full state", "id", id, "dropped_events", dropped, "sequence", s.state.Sequence)
	}
}

// drain empties ch without blocking. Only the publisher sends on ch, so the
// caller holding mu is guaranteed room for one event afterwards.
func drain(ch chan *jsonrpc.SubscriptionEvent) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

// subscribe registers a subscriber and queues the current full state as its first event.
func (s *Server) subscribe(id rpc.ID) (chan *jsonrpc.SubscriptionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := newEvent(jsonrpc.EventTypeFull, s.state)
	if err != nil {
		return nil, err
	}
	ch := make(chan *jsonrpc.SubscriptionEvent, s.bufferSize)
	ch <- event
	s.metrics.events.WithLabelValues(jsonrpc.EventTypeFull).Inc()
	s.subscribers[id] = ch
	return ch, nil
}

func (s *Server) unsubscribe(id rpc.ID, ch chan *jsonrpc.SubscriptionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.subscribers[id]; ok && current == ch {
		delete(s.subscribers, id)
	}
}

func newEvent(eventType string, payload any) (*jsonrpc.SubscriptionEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &jsonrpc.SubscriptionEvent{
		Type:    eventType,
		Payload: data,
		SentAt:  time.Now().UnixNano(),
	}, nil
}
