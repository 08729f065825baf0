package domain

import "github.com/sakashimaa/fulfillment-saga/pkg/faults"

var (
	ErrProductNotFound           = faults.New(faults.NotFound, "product not found")
	ErrInsufficientStock         = faults.New(faults.InsufficientResource, "insufficient stock")
	ErrInvalidQuantity           = faults.New(faults.Validation, "quantity must be positive")
	ErrInvalidOrderStatus        = faults.New(faults.Validation, "unknown order status")
	ErrEmptyOrder                = faults.New(faults.Validation, "order has no products")
	ErrTotalAlreadySet           = faults.New(faults.InvalidStatus, "order total already set")
	ErrReservationAlreadySettled = faults.New(faults.Conflict, "reservation already settled")
	ErrReservationLineStatus     = faults.New(faults.InvalidStatus, "reservation line in wrong status")

	// ErrHeldStockMismatch means a release asked for more units than the
	// product holds. It is never the caller's fault.
	ErrHeldStockMismatch = faults.New(faults.Infrastructure, "held stock mismatch")
)
