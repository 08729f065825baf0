// Package gateway opens and refunds billings at the external payment provider.
package gateway

import (
	"context"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

var (
	ErrGatewayRejected    = faults.New(faults.Validation, "payment gateway rejected billing")
	ErrGatewayUnavailable = faults.New(faults.Infrastructure, "payment gateway unavailable")
)

type BillingRequest struct {
	OrderID       sharedDomain.ID
	CustomerID    sharedDomain.ID
	AmountInCents int64
	PaymentMethod sharedDomain.PaymentMethod
}

type BillingResponse struct {
	PaymentURL              string `json:"paymentURL"`
	PaymentGatewayBillingID string `json:"paymentGatewayBillingID"`
	PaymentGateway          string `json:"paymentGateway"`
}

type RefundRequest struct {
	OrderID                 sharedDomain.ID
	PaymentGatewayBillingID string
	AmountInCents           int64
}

type PaymentGateway interface {
	// CreateBilling is idempotent per order: repeating it for the same order
	// returns the billing opened the first time.
	CreateBilling(ctx context.Context, req BillingRequest) (*BillingResponse, error)
	// Refund returns a settled billing in full. Refunding the same billing
	// twice is a no-op.
	Refund(ctx context.Context, req RefundRequest) error
}
