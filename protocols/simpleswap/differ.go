package simpleswap

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrIdentityChanged is returned when two views disagree on a pool's immutable fields.
var ErrIdentityChanged = errors.New("pool identity changed")

// PoolDiff carries only the mutable fields that changed between two views.
type PoolDiff struct {
	Reserve0    *big.Int `json:"reserve0,omitempty"`
	Reserve1    *big.Int `json:"reserve1,omitempty"`
	ShareSupply *big.Int `json:"shareSupply,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolDiff) IsEmpty() bool {
	return d.Reserve0 == nil && d.Reserve1 == nil && d.ShareSupply == nil
}

// Differ computes the changes between two views of the same pool.
// Address, tokens and fee are fixed at construction, so any difference in
// them is an error rather than a diff.
func Differ(old, new Pool) (PoolDiff, error) {
	if old.Address != new.Address || old.Token0 != new.Token0 || old.Token1 != new.Token1 || old.FeeBps != new.FeeBps {
		return PoolDiff{}, fmt.Errorf("%w: %s -> %s", ErrIdentityChanged, old.Address.Hex(), new.Address.Hex())
	}

	var diff PoolDiff
	if changed(old.Reserve0, new.Reserve0) {
		diff.Reserve0 = copyBig(new.Reserve0)
	}
	if changed(old.Reserve1, new.Reserve1) {
		diff.Reserve1 = copyBig(new.Reserve1)
	}
	if changed(old.ShareSupply, new.ShareSupply) {
		diff.ShareSupply = copyBig(new.ShareSupply)
	}
	return diff, nil
}

// changed treats nil as zero so a freshly constructed view compares equal to an empty one.
func changed(a, b *big.Int) bool {
	return orZero(a).Cmp(orZero(b)) != 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	return new(big.Int).Set(orZero(v))
}
