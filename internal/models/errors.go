package models

import "errors"

var (
	ErrEmptyOrder         = errors.New("order has no items")
	ErrUnknownItem        = errors.New("unknown menu item")
	ErrUnknownPaymentMode = errors.New("unknown payment mode")
	ErrNotFound           = errors.New("not found")
	ErrMenuUnavailable    = errors.New("menu unavailable")
	// ErrRejected means the remote store refused the data itself; retrying
	// the same write can never succeed.
	ErrRejected = errors.New("rejected by remote store")
)
