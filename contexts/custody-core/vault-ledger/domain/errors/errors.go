package errors

import "errors"

var (
	ErrInvalidInput            = errors.New("vault input is invalid")
	ErrInvalidPolicy           = errors.New("authorization policy is required")
	ErrIncorrectValue          = errors.New("attached value does not match declared deposit")
	ErrInvalidTimeRange        = errors.New("policy time range start must be before end")
	ErrAmountOverflow          = errors.New("balance increment overflows")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrWithdrawalDenied        = errors.New("withdrawal denied by active policy")
	ErrTransferFailed          = errors.New("token transfer failed")
	ErrNativeTransferFailed    = errors.New("native currency transfer failed")
	ErrReentrancyBlocked       = errors.New("vault operation already in progress")
	ErrNotAdministrator        = errors.New("caller is not the vault administrator")
	ErrNotPendingAdministrator = errors.New("caller is not the pending administrator")
	ErrIdempotencyKeyMissing   = errors.New("idempotency key is required")
	ErrIdempotencyConflict     = errors.New("idempotency key already used with different payload")
	ErrNotFound                = errors.New("vault record not found")
)
