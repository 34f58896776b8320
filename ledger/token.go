package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is a handle to one token in a State. It is cheap to copy and safe for
// concurrent use; all amounts it returns are copies.
type Token struct {
	state   *State
	address common.Address
}

// Address returns the token's address.
func (t *Token) Address() common.Address {
	return t.address
}

// Meta returns the token's metadata.
func (t *Token) Meta() TokenMeta {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return TokenMeta{Address: t.address}
	}
	return ts.meta
}

// BalanceOf returns owner's balance. Unknown owners hold zero.
func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(balanceOf(ts, owner))
}

// TotalSupply returns the amount in circulation.
func (t *Token) TotalSupply() *uint256.Int {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(&ts.totalSupply)
}

// Allowance returns how much spender may still move on owner's behalf.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return new(uint256.Int)
	}
	if a, ok := ts.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return err
	}
	return t.state.move(ts, from, to, amount)
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// spender's allowance. An allowance of 2^256-1 is never decremented.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return err
	}

	allowance := new(uint256.Int)
	if a, ok := ts.allowances[from][spender]; ok {
		allowance.Set(a)
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may spend %s %s of %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), ts.meta.Symbol, from.Hex(), amount.Dec())
	}

	if err := t.state.move(ts, from, to, amount); err != nil {
		return err
	}
	if !allowance.Eq(maxUint256) {
		t.state.setAllowance(ts, from, spender, new(uint256.Int).Sub(allowance, amount))
	}
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return err
	}
	t.state.setAllowance(ts, owner, spender, new(uint256.Int).Set(amount))
	return nil
}

// Mint credits to with freshly issued tokens.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return err
	}

	supply, overflow := new(uint256.Int).AddOverflow(&ts.totalSupply, amount)
	if overflow {
		return fmt.Errorf("%w: minting %s %s", ErrSupplyOverflow, amount.Dec(), ts.meta.Symbol)
	}
	// balance <= supply, so this cannot overflow once the supply check passed.
	balance := new(uint256.Int).Add(balanceOf(ts, to), amount)

	t.state.setSupply(ts, supply)
	t.state.setBalance(ts, to, balance)
	return nil
}

// Burn destroys amount of from's tokens.
func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	ts, err := t.state.token(t.address)
	if err != nil {
		return err
	}

	balance := balanceOf(ts, from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, burning %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), ts.meta.Symbol, amount.Dec())
	}
	t.state.setBalance(ts, from, new(uint256.Int).Sub(balance, amount))
	t.state.setSupply(ts, new(uint256.Int).Sub(&ts.totalSupply, amount))
	return nil
}

var maxUint256 = new(uint256.Int).SetAllOne()
