// Package jsonrpc holds the wire types shared by the pool's JSON-RPC server
// and its clients.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/defistate/simpleswap-go/pool"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// Namespace is the namespace under which the pool API is registered.
	Namespace = "amm"
	// StateStreamSubscriptionMethod is passed to Subscribe to receive state events.
	StateStreamSubscriptionMethod = "stateStream"

	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object sent to stream subscribers.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// AddLiquidityResult is returned by amm_addLiquidity.
type AddLiquidityResult struct {
	Shares *hexutil.Big `json:"shares"`
}

// RemoveLiquidityResult is returned by amm_removeLiquidity.
type RemoveLiquidityResult struct {
	Amount0 *hexutil.Big `json:"amount0"`
	Amount1 *hexutil.Big `json:"amount1"`
}

// SwapResult is returned by amm_simpleSwap.
type SwapResult struct {
	AmountOut *hexutil.Big `json:"amountOut"`
}

// Error codes for pool failures. The failure tag travels as error data.
const (
	CodeInvalidAmount           = -32010
	CodeInvalidShareAmount      = -32011
	CodeInvalidAsset            = -32012
	CodeDivisionByZero          = -32013
	CodeArithmeticOverflow      = -32014
	CodeInsufficientShares      = -32015
	CodeExternalTransferFailure = -32016
	CodeInsufficientLiquidity   = -32017
)

var reasonCodes = map[string]int{
	pool.ReasonInvalidAmount:           CodeInvalidAmount,
	pool.ReasonInvalidShareAmount:      CodeInvalidShareAmount,
	pool.ReasonInvalidAsset:            CodeInvalidAsset,
	pool.ReasonDivisionByZero:          CodeDivisionByZero,
	pool.ReasonArithmeticOverflow:      CodeArithmeticOverflow,
	pool.ReasonInsufficientShares:      CodeInsufficientShares,
	pool.ReasonExternalTransferFailure: CodeExternalTransferFailure,
	pool.ReasonInsufficientLiquidity:   CodeInsufficientLiquidity,
}

// Error is a pool failure as carried over JSON-RPC.
type Error struct {
	Code    int
	Reason  string
	Message string
}

func (e *Error) Error() string          { return e.Message }
func (e *Error) ErrorCode() int         { return e.Code }
func (e *Error) ErrorData() interface{} { return e.Reason }

// Unwrap lets errors.Is match the pool sentinel named by Reason.
func (e *Error) Unwrap() error {
	return pool.ErrorForReason(e.Reason)
}

var (
	_ rpc.Error     = (*Error)(nil)
	_ rpc.DataError = (*Error)(nil)
)

// EncodeError converts a pool failure into an Error with a stable code.
// Errors without a pool tag are returned unchanged.
func EncodeError(err error) error {
	if err == nil {
		return nil
	}
	reason := pool.Reason(err)
	code, ok := reasonCodes[reason]
	if !ok {
		return err
	}
	return &Error{Code: code, Reason: reason, Message: err.Error()}
}

// DecodeError rebuilds an Error from a JSON-RPC error returned by the client
// so errors.Is matches the original pool sentinel. Other errors are returned
// unchanged.
func DecodeError(err error) error {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	reason, ok := dataErr.ErrorData().(string)
	if !ok || pool.ErrorForReason(reason) == nil {
		return err
	}

	code := 0
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code = rpcErr.ErrorCode()
	}
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf("rpc: %s", err.Error())}
}
