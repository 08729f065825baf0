package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/fsm"
)

var (
	ErrInvalidBillingStatus = faults.New(faults.Validation, "unknown billing status")
	// ErrUnsupportedBillingTransition is returned for gateway statuses that
	// are recognised but not acted on yet.
	ErrUnsupportedBillingTransition = faults.New(faults.InvalidStatus, "unsupported billing transition")
)

type BillingStatus string

const (
	BillingStatusPending   BillingStatus = "PENDING"
	BillingStatusExpired   BillingStatus = "EXPIRED"
	BillingStatusCancelled BillingStatus = "CANCELLED"
	BillingStatusPaid      BillingStatus = "PAID"
	BillingStatusRefunded  BillingStatus = "REFUNDED"
)

var BillingTransitions = fsm.New("billing",
	fsm.Edge[BillingStatus]{From: BillingStatusPending, To: BillingStatusPaid},
	fsm.Edge[BillingStatus]{From: BillingStatusPending, To: BillingStatusExpired},
	fsm.Edge[BillingStatus]{From: BillingStatusPending, To: BillingStatusCancelled},
	fsm.Edge[BillingStatus]{From: BillingStatusPaid, To: BillingStatusRefunded},
)

func ParseBillingStatus(s string) (BillingStatus, error) {
	switch st := BillingStatus(s); st {
	case BillingStatusPending, BillingStatusExpired, BillingStatusCancelled, BillingStatusPaid, BillingStatusRefunded:
		return st, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidBillingStatus, s)
	}
}

type Billing struct {
	ID                      sharedDomain.ID            `db:"id" json:"id"`
	OrderID                 sharedDomain.ID            `db:"order_id" json:"orderID"`
	CustomerID              sharedDomain.ID            `db:"customer_id" json:"customerID"`
	Status                  BillingStatus              `db:"status" json:"status"`
	AmountInCents           int64                      `db:"amount_in_cents" json:"amountInCents"`
	PaymentMethod           sharedDomain.PaymentMethod `db:"payment_method" json:"paymentMethod"`
	PaymentGateway          string                     `db:"payment_gateway" json:"paymentGateway"`
	PaymentGatewayBillingID string                     `db:"payment_gateway_billing_id" json:"paymentGatewayBillingID"`
	PaymentURL              string                     `db:"payment_url" json:"paymentURL"`
	PaymentAt               *time.Time                 `db:"payment_at" json:"paymentAt"`
	CreatedAt               time.Time                  `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time                  `db:"updated_at" json:"updatedAt"`
	DeletedAt               *time.Time                 `db:"deleted_at" json:"-"`
}

func (b *Billing) Transition(target BillingStatus, now time.Time) error {
	if err := BillingTransitions.Check(b.Status, target); err != nil {
		return fmt.Errorf("billing %s: %w", b.ID, err)
	}

	b.Status = target
	b.UpdatedAt = now
	return nil
}

func (b *Billing) MarkPaid(now time.Time) error {
	if err := b.Transition(BillingStatusPaid, now); err != nil {
		return err
	}

	paidAt := now
	b.PaymentAt = &paidAt
	return nil
}

type WebhookInput struct {
	PaymentGatewayBillingID string `json:"paymentGatewayBillingID" validate:"required"`
	Status                  string `json:"status" validate:"required"`
}
