package simpleswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeBps is the fixed swap fee in basis points (0.3%).
const FeeBps = 30

// Pool is the serializable view of a constant-product pool.
type Pool struct {
	Address     common.Address `json:"address"`
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Reserve0    *big.Int       `json:"reserve0"`
	Reserve1    *big.Int       `json:"reserve1"`
	ShareSupply *big.Int       `json:"shareSupply"`
	FeeBps      uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// deepCopyPool creates a new Pool with its own memory for pointer types like *big.Int.
// This is essential to prevent the new state from sharing memory with the old state.
func deepCopyPool(p Pool) Pool {
	newPool := p
	if p.Reserve0 != nil {
		newPool.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		newPool.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	if p.ShareSupply != nil {
		newPool.ShareSupply = new(big.Int).Set(p.ShareSupply)
	}
	return newPool
}

// Clone returns a deep copy of the pool view.
func (p Pool) Clone() Pool {
	return deepCopyPool(p)
}
