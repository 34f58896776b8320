package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Asset is the fungible-asset capability for one pooled asset.
// The from / spender arguments carry the identity of the account issuing the
// call; the pool always passes its own custody address.
type Asset interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	BalanceOf(owner common.Address) *uint256.Int
}

// ShareLedger is the capability over the pool's own ownership shares.
// Mint may only refuse when the supply would exceed 2^256-1; the pool reports
// any refusal as ErrArithmeticOverflow. Burn must refuse to burn more than
// from holds.
type ShareLedger interface {
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
	TotalSupply() *uint256.Int
	BalanceOf(owner common.Address) *uint256.Int
}

// AssetResolver turns an asset reference into a callable capability.
type AssetResolver interface {
	Resolve(ref common.Address) (Asset, error)
}

// ResolverFunc adapts a function to AssetResolver.
type ResolverFunc func(ref common.Address) (Asset, error)

func (f ResolverFunc) Resolve(ref common.Address) (Asset, error) {
	return f(ref)
}

// Host provides the transaction boundary every entry point runs inside.
//
// Atomic must serialize calls against everything the pool's collaborators
// touch and must undo every collaborator write made by fn when fn returns an
// error.
type Host interface {
	Atomic(fn func() error) error
}
