package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/fsm"
)

type OrderStatus string

const (
	OrderStatusPaymentSucceeded  OrderStatus = "PAYMENT_SUCCEEDED"
	OrderStatusShipmentCreated   OrderStatus = "SHIPMENT_CREATED"
	OrderStatusDeliveryCompleted OrderStatus = "DELIVERY_COMPLETED"
	OrderStatusDeliveryFailed    OrderStatus = "DELIVERY_FAILED"
	// OrderStatusPaymentRefunded marks an order whose refund arrived before
	// its payment. No shipment is ever opened for it.
	OrderStatusPaymentRefunded OrderStatus = "PAYMENT_REFUNDED"
)

var OrderTransitions = fsm.New("delivery order",
	fsm.Edge[OrderStatus]{From: OrderStatusPaymentSucceeded, To: OrderStatusShipmentCreated},
	fsm.Edge[OrderStatus]{From: OrderStatusShipmentCreated, To: OrderStatusDeliveryCompleted},
	fsm.Edge[OrderStatus]{From: OrderStatusShipmentCreated, To: OrderStatusDeliveryFailed},
)

// Order is the delivery projection, created when the payment is confirmed.
type Order struct {
	ID         sharedDomain.ID `db:"id" json:"id"`
	CustomerID sharedDomain.ID `db:"customer_id" json:"customerID"`
	Status     OrderStatus     `db:"status" json:"status"`
	PaymentAt  time.Time       `db:"payment_at" json:"paymentAt"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

func (o *Order) Transition(target OrderStatus, now time.Time) error {
	if err := OrderTransitions.Check(o.Status, target); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}

	o.Status = target
	o.UpdatedAt = now
	return nil
}
