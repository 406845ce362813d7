package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrMissingField       = errors.New("required field missing")
	ErrAccountClosed      = errors.New("account closed")
	ErrSelfTransfer       = errors.New("cannot transfer to same account")
	ErrUnknownDestination = errors.New("destination account not found")
	ErrInvalidState       = errors.New("operation not permitted in current state")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrVersionConflict    = errors.New("optimistic lock conflict")

	ErrPaymentTooSmall      = errors.New("payment too small to cover interest")
	ErrBelowMinimumDeposit  = errors.New("deposit below product minimum")
	ErrBelowMinimumDuration = errors.New("duration below product minimum")
	ErrProductInactive      = errors.New("savings product inactive")
	ErrWithdrawalLocked     = errors.New("withdrawal delay has not elapsed")
	ErrEarlyWithdrawal      = errors.New("early withdrawal not allowed for this product")
	ErrDuplicatePosting     = errors.New("posting already completed for this period")
)
