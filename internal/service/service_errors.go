package service

import "errors"

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrForbidden           = errors.New("forbidden")
	ErrMissingCustomer     = errors.New("order requires an authenticated user or customer info")
	ErrEmptyCart           = errors.New("cart must contain at least one line")
)
