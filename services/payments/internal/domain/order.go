package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/fsm"
)

type OrderStatus string

const (
	OrderStatusInventoryConfirmed OrderStatus = "INVENTORY_CONFIRMED"
	OrderStatusAwaitingPayment    OrderStatus = "AWAITING_PAYMENT"
	OrderStatusPaymentSucceeded   OrderStatus = "PAYMENT_SUCCEEDED"
	OrderStatusPaymentFailed      OrderStatus = "PAYMENT_FAILED"
	OrderStatusPaymentRefunded    OrderStatus = "PAYMENT_REFUNDED"
)

var OrderTransitions = fsm.New("payments order",
	fsm.Edge[OrderStatus]{From: OrderStatusInventoryConfirmed, To: OrderStatusAwaitingPayment},
	fsm.Edge[OrderStatus]{From: OrderStatusAwaitingPayment, To: OrderStatusPaymentSucceeded},
	fsm.Edge[OrderStatus]{From: OrderStatusAwaitingPayment, To: OrderStatusPaymentFailed},
	fsm.Edge[OrderStatus]{From: OrderStatusPaymentSucceeded, To: OrderStatusPaymentRefunded},
)

// Order is the payments projection, created when stock is confirmed.
type Order struct {
	ID                 sharedDomain.ID            `db:"id" json:"id"`
	CustomerID         sharedDomain.ID            `db:"customer_id" json:"customerID"`
	PaymentMethod      sharedDomain.PaymentMethod `db:"payment_method" json:"paymentMethod"`
	Status             OrderStatus                `db:"status" json:"status"`
	TotalAmountInCents int64                      `db:"total_amount_in_cents" json:"totalAmountInCents"`
	CreatedAt          time.Time                  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time                  `db:"updated_at" json:"updatedAt"`
	DeletedAt          *time.Time                 `db:"deleted_at" json:"-"`
}

func (o *Order) Transition(target OrderStatus, now time.Time) error {
	if err := OrderTransitions.Check(o.Status, target); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}

	o.Status = target
	o.UpdatedAt = now
	return nil
}
