package ledger

import "crowdfund-escrow/pkg/errutil"

var (
	ErrInvalidAmount         = errutil.BaseError{Code: errutil.StatusValidationFailed, Reason: "INVALID_AMOUNT", Message: "amount must be positive"}
	ErrInvalidAccount        = errutil.BaseError{Code: errutil.StatusValidationFailed, Reason: "INVALID_ACCOUNT", Message: "account and asset are required"}
	ErrSelfTransfer          = errutil.BaseError{Code: errutil.StatusValidationFailed, Reason: "SELF_TRANSFER", Message: "source and destination must differ"}
	ErrInsufficientBalance   = errutil.BaseError{Code: errutil.StatusInsufficient, Reason: "INSUFFICIENT_BALANCE", Message: "insufficient balance"}
	ErrInsufficientAllowance = errutil.BaseError{Code: errutil.StatusInsufficient, Reason: "INSUFFICIENT_ALLOWANCE", Message: "insufficient allowance"}
	ErrNotAllowed            = errutil.BaseError{Code: errutil.StatusForbidden, Reason: "NOT_ALLOWED", Message: "caller may not mint"}
)
