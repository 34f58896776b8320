package pool

import (
	"errors"

	"github.com/defistate/simpleswap-go/protocols/simpleswap/calculator"
)

var (
	// ErrInvalidAmount is returned for a zero deposit amount or a zero swap input.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidShareAmount is returned when a deposit would mint zero shares or a withdrawal burns zero.
	ErrInvalidShareAmount = errors.New("invalid share amount")
	// ErrInvalidAsset is returned when a swap names an asset the pool does not hold.
	ErrInvalidAsset = errors.New("invalid asset")
	// ErrInsufficientShares is returned when the share ledger refuses a burn.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrExternalTransferFailure is returned when an asset refuses a transfer into or out of the pool.
	ErrExternalTransferFailure = errors.New("external transfer failure")
	// ErrInvalidConfig is returned by New for an incomplete or inconsistent Config.
	ErrInvalidConfig = errors.New("invalid pool config")

	ErrDivisionByZero        = calculator.ErrDivisionByZero
	ErrArithmeticOverflow    = calculator.ErrArithmeticOverflow
	ErrInsufficientLiquidity = calculator.ErrInsufficientLiquidity
)

// Failure reason tags, stable across transports.
const (
	ReasonOK                      = "ok"
	ReasonInvalidAmount           = "InvalidAmount"
	ReasonInvalidShareAmount      = "InvalidShareAmount"
	ReasonInvalidAsset            = "InvalidAsset"
	ReasonDivisionByZero          = "DivisionByZero"
	ReasonArithmeticOverflow      = "ArithmeticOverflow"
	ReasonInsufficientShares      = "InsufficientShares"
	ReasonInsufficientLiquidity   = "InsufficientLiquidity"
	ReasonExternalTransferFailure = "ExternalTransferFailure"
	ReasonUnknown                 = "Unknown"
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidAmount, ReasonInvalidAmount},
	{ErrInvalidShareAmount, ReasonInvalidShareAmount},
	{ErrInvalidAsset, ReasonInvalidAsset},
	{ErrInsufficientShares, ReasonInsufficientShares},
	{ErrExternalTransferFailure, ReasonExternalTransferFailure},
	{ErrDivisionByZero, ReasonDivisionByZero},
	{ErrArithmeticOverflow, ReasonArithmeticOverflow},
	{ErrInsufficientLiquidity, ReasonInsufficientLiquidity},
}

// Reason returns the failure tag for err, ReasonOK for nil.
func Reason(err error) string {
	if err == nil {
		return ReasonOK
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}

// ErrorForReason returns the sentinel for a failure tag, or nil if the tag is unknown.
func ErrorForReason(reason string) error {
	for _, r := range reasons {
		if r.reason == reason {
			return r.err
		}
	}
	return nil
}
