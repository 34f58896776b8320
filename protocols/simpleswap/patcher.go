package simpleswap

// Patcher constructs the next view of a pool by applying a diff to the previous view.
// The result never shares *big.Int memory with prevState or diff.
func Patcher(prevState Pool, diff PoolDiff) (Pool, error) {
	newState := deepCopyPool(prevState)

	if diff.Reserve0 != nil {
		newState.Reserve0 = copyBig(diff.Reserve0)
	}
	if diff.Reserve1 != nil {
		newState.Reserve1 = copyBig(diff.Reserve1)
	}
	if diff.ShareSupply != nil {
		newState.ShareSupply = copyBig(diff.ShareSupply)
	}
	return newState, nil
}
