package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveAddress returns a deterministic custody address for a pair of assets:
// the last 20 bytes of keccak256(asset0 ‖ asset1). Order matters.
func DeriveAddress(asset0, asset1 common.Address) common.Address {
	hash := crypto.Keccak256(asset0.Bytes(), asset1.Bytes())
	return common.BytesToAddress(hash[12:])
}
