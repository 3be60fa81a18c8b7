package oracle

import "crowdfund-escrow/pkg/errutil"

var (
	ErrInvalidPrice   = errutil.BaseError{Code: errutil.StatusValidationFailed, Reason: "INVALID_PRICE", Message: "price must be a positive integer"}
	ErrInvalidAmount  = errutil.BaseError{Code: errutil.StatusValidationFailed, Reason: "INVALID_AMOUNT", Message: "amount must not be negative"}
	ErrPriceUnset     = errutil.BaseError{Code: errutil.StatusServiceUnavailable, Reason: "PRICE_UNSET", Message: "no price for asset"}
	ErrPriceStale     = errutil.BaseError{Code: errutil.StatusServiceUnavailable, Reason: "PRICE_STALE", Message: "price is stale"}
	ErrNotPriceSetter = errutil.BaseError{Code: errutil.StatusForbidden, Reason: "NOT_PRICE_SETTER", Message: "caller may not set prices"}
)
