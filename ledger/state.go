// Package ledger is an in-memory, journaled multi-token ledger.
//
// It provides the fungible-asset and share-ledger capabilities a pool consumes
// and the atomic execution boundary a pool runs its entry points inside.
// Writes inside Atomic are journaled so a call that fails leaves no trace.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds the approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrUnknownToken is returned when a token address has not been deployed.
	ErrUnknownToken = errors.New("unknown token")
	// ErrTokenExists is returned when deploying over an existing token address.
	ErrTokenExists = errors.New("token already exists")
	// ErrSupplyOverflow is returned when a credit would push a balance or supply past 2^256-1.
	ErrSupplyOverflow = errors.New("supply overflow")
	// ErrNilAmount is returned when a nil amount is passed.
	ErrNilAmount = errors.New("nil amount")
)

// TokenMeta describes a deployed token.
type TokenMeta struct {
	Address  common.Address `json:"address" yaml:"address"`
	Name     string         `json:"name" yaml:"name"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

type tokenState struct {
	meta        TokenMeta
	totalSupply uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

// State holds every token's balances and allowances.
//
// Two locks guard it. txMu serializes Atomic calls, so at most one
// transaction owns the journal at a time. mu guards the maps and is held only
// for the duration of a single read or write, so readers never wait for a
// whole transaction to finish.
//
// Writes made outside Atomic (genesis allocations, test setup) are not
// isolated from a concurrently running transaction and must not race with one.
// They are not journaled unless a Snapshot was taken first.
type State struct {
	txMu sync.Mutex

	mu      sync.RWMutex
	tokens  map[common.Address]*tokenState
	journal journal
}

// NewState creates an empty ledger.
func NewState() *State {
	return &State{
		tokens: make(map[common.Address]*tokenState),
	}
}

// Deploy registers a new token and returns its handle.
func (s *State) Deploy(meta TokenMeta) (*Token, error) {
	if meta.Address == (common.Address{}) {
		return nil, errors.New("ledger: token address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[meta.Address]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, meta.Address.Hex())
	}
	s.tokens[meta.Address] = &tokenState{
		meta:       meta,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
	s.journal.append(func() { delete(s.tokens, meta.Address) })
	return &Token{state: s, address: meta.Address}, nil
}

// Token returns the handle of a deployed token.
func (s *State) Token(addr common.Address) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tokens[addr]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return &Token{state: s, address: addr}, nil
}

// Tokens returns the metadata of every deployed token, ordered by address.
func (s *State) Tokens() []TokenMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]TokenMeta, 0, len(s.tokens))
	for _, t := range s.tokens {
		metas = append(metas, t.meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Address.Cmp(metas[j].Address) < 0
	})
	return metas
}

// Snapshot returns an id that RevertToSnapshot can roll the ledger back to.
func (s *State) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.snapshot()
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
func (s *State) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal.revert(id)
}

// Atomic runs fn as one all-or-nothing transaction. Calls are serialized;
// if fn returns an error every ledger write it made is reverted and the error
// is returned unchanged. Snapshot ids taken before Atomic returns are invalid
// afterwards.
//
// fn must not call Atomic on the same State: the serialization lock is not
// reentrant and such a call blocks forever.
func (s *State) Atomic(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.Snapshot()
	err := fn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.journal.revert(snap)
	}
	s.journal.reset()
	return err
}

func (s *State) token(addr common.Address) (*tokenState, error) {
	t, ok := s.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

// setBalance writes a balance and journals the previous value.
func (s *State) setBalance(t *tokenState, owner common.Address, amount *uint256.Int) {
	prev, existed := t.balances[owner]
	s.journal.append(func() {
		if existed {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
	t.balances[owner] = amount
}

func (s *State) setSupply(t *tokenState, amount *uint256.Int) {
	prev := t.totalSupply
	s.journal.append(func() { t.totalSupply = prev })
	t.totalSupply.Set(amount)
}

func (s *State) setAllowance(t *tokenState, owner, spender common.Address, amount *uint256.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = spenders
	}
	prev, existed := spenders[spender]
	s.journal.append(func() {
		if existed {
			spenders[spender] = prev
		} else {
			delete(spenders, spender)
		}
	})
	spenders[spender] = amount
}

func balanceOf(t *tokenState, owner common.Address) *uint256.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

// move debits from and credits to. Must be called with s.mu held.
func (s *State) move(t *tokenState, from, to common.Address, amount *uint256.Int) error {
	fromBalance := balanceOf(t, from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), t.meta.Symbol, amount.Dec())
	}
	if from == to {
		return nil
	}
	toBalance := balanceOf(t, to)
	newTo, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
	if overflow {
		return fmt.Errorf("%w: crediting %s", ErrSupplyOverflow, to.Hex())
	}
	s.setBalance(t, from, new(uint256.Int).Sub(fromBalance, amount))
	s.setBalance(t, to, newTo)
	return nil
}
