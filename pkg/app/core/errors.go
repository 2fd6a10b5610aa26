package core

import "errors"

// Every failure is a rejected operation, never a corrupted-state condition.
// Callers match with errors.Is; operations wrap these with context via
// fmt.Errorf("%w: ...").
var (
	ErrUnauthorized                  = errors.New("unauthorized")
	ErrNotFound                      = errors.New("not found")
	ErrInvalidAmount                 = errors.New("invalid amount")
	ErrInsufficientBalance           = errors.New("insufficient balance")
	ErrWouldTriggerLiquidation       = errors.New("withdrawal would trigger liquidation")
	ErrInsufficientCollateral        = errors.New("insufficient collateral to borrow this amount")
	ErrOverRepayment                 = errors.New("repayment exceeds outstanding loan")
	ErrLiquidationNotPermitted       = errors.New("liquidation not permitted")
	ErrPriceUnavailable              = errors.New("price unavailable")
	ErrInsufficientFundsSent         = errors.New("insufficient funds sent")
	ErrNotOwnerOrNotFound            = errors.New("order does not exist or the sender is not the owner")
	ErrOffTickGrid                   = errors.New("price not on tick grid")
	ErrDeadlineNotReached            = errors.New("not allowed before the liquidation deadline")
	ErrInsufficientCollateralToSeize = errors.New("insufficient collateral to seize")
)
