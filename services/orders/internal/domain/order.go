package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/fsm"
)

var (
	ErrInvalidOrderStatus = faults.New(faults.Validation, "unknown order status")
	ErrTotalAlreadySet    = faults.New(faults.InvalidStatus, "order total already set")
	ErrUnknownLine        = faults.New(faults.Validation, "order product has no confirmed price")
	ErrEmptyOrder         = faults.New(faults.Validation, "order has no products")
	ErrInvalidQuantity    = faults.New(faults.Validation, "quantity must be positive")
)

type OrderStatus string

const (
	OrderStatusCreated                  OrderStatus = "CREATED"
	OrderStatusInventoryConfirmed       OrderStatus = "INVENTORY_CONFIRMED"
	OrderStatusInventoryProductsMissing OrderStatus = "INVENTORY_PRODUCTS_MISSING"
	OrderStatusAwaitingPayment          OrderStatus = "AWAITING_PAYMENT"
	OrderStatusPaymentSucceeded         OrderStatus = "PAYMENT_SUCCEEDED"
	OrderStatusPaymentFailed            OrderStatus = "PAYMENT_FAILED"
	OrderStatusPaymentRefunded          OrderStatus = "PAYMENT_REFUNDED"
	OrderStatusShipmentCreated          OrderStatus = "SHIPMENT_CREATED"
	OrderStatusDeliveryCompleted        OrderStatus = "DELIVERY_COMPLETED"
	OrderStatusDeliveryFailed           OrderStatus = "DELIVERY_FAILED"
)

var OrderTransitions = fsm.New("order",
	fsm.Edge[OrderStatus]{From: OrderStatusCreated, To: OrderStatusInventoryConfirmed},
	fsm.Edge[OrderStatus]{From: OrderStatusCreated, To: OrderStatusInventoryProductsMissing},
	fsm.Edge[OrderStatus]{From: OrderStatusInventoryConfirmed, To: OrderStatusAwaitingPayment},
	fsm.Edge[OrderStatus]{From: OrderStatusAwaitingPayment, To: OrderStatusPaymentSucceeded},
	fsm.Edge[OrderStatus]{From: OrderStatusAwaitingPayment, To: OrderStatusPaymentFailed},
	fsm.Edge[OrderStatus]{From: OrderStatusPaymentSucceeded, To: OrderStatusPaymentRefunded},
	fsm.Edge[OrderStatus]{From: OrderStatusPaymentSucceeded, To: OrderStatusShipmentCreated},
	fsm.Edge[OrderStatus]{From: OrderStatusShipmentCreated, To: OrderStatusDeliveryCompleted},
	fsm.Edge[OrderStatus]{From: OrderStatusShipmentCreated, To: OrderStatusDeliveryFailed},
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if st == OrderStatusCreated {
		return st, nil
	}
	if _, ok := OrderTransitions.Precondition(st); ok {
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidOrderStatus, s)
}

type Order struct {
	ID                 sharedDomain.ID            `db:"id" json:"id"`
	CustomerID         sharedDomain.ID            `db:"customer_id" json:"customerID"`
	PaymentMethod      sharedDomain.PaymentMethod `db:"payment_method" json:"paymentMethod"`
	Status             OrderStatus                `db:"status" json:"status"`
	TotalAmountInCents *int64                     `db:"total_amount_in_cents" json:"totalAmountInCents"`
	PaymentURL         *string                    `db:"payment_url" json:"paymentURL,omitempty"`
	Products           []OrderProduct             `db:"-" json:"products"`
	CreatedAt          time.Time                  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time                  `db:"updated_at" json:"updatedAt"`
	DeletedAt          *time.Time                 `db:"deleted_at" json:"-"`
}

type OrderProduct struct {
	ID                  sharedDomain.ID `db:"id" json:"id"`
	OrderID             sharedDomain.ID `db:"order_id" json:"orderID"`
	ProductID           sharedDomain.ID `db:"product_id" json:"productID"`
	Quantity            int64           `db:"quantity" json:"quantity"`
	PricePerUnitInCents *int64          `db:"price_per_unit_in_cents" json:"pricePerUnitInCents"`
}

// Transition moves the order to target when its current status is the one
// precondition of target.
func (o *Order) Transition(target OrderStatus, now time.Time) error {
	if err := OrderTransitions.Check(o.Status, target); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}

	o.Status = target
	o.UpdatedAt = now
	return nil
}

// ConfirmStock prices every line from the confirmed stock and sets the total.
// The total is written once; a second confirmation fails on the status guard.
func (o *Order) ConfirmStock(prices map[sharedDomain.ID]int64, now time.Time) error {
	if err := OrderTransitions.Check(o.Status, OrderStatusInventoryConfirmed); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.TotalAmountInCents != nil {
		return fmt.Errorf("%w: order %s", ErrTotalAlreadySet, o.ID)
	}

	var total int64
	for _, p := range o.Products {
		price, ok := prices[p.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %s", ErrUnknownLine, p.ProductID)
		}
		total += price * p.Quantity
	}

	for i := range o.Products {
		price := prices[o.Products[i].ProductID]
		o.Products[i].PricePerUnitInCents = &price
	}

	o.TotalAmountInCents = &total
	o.Status = OrderStatusInventoryConfirmed
	o.UpdatedAt = now
	return nil
}

func (o *Order) AwaitPayment(paymentURL string, now time.Time) error {
	if err := o.Transition(OrderStatusAwaitingPayment, now); err != nil {
		return err
	}

	o.PaymentURL = &paymentURL
	return nil
}

type CreateOrderProduct struct {
	ProductID string `json:"productID" validate:"required,uuid"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

type CreateOrderInput struct {
	// ID lets the client pick the order id, which makes retried requests
	// collide instead of creating a second order.
	ID            string               `json:"id" validate:"omitempty,uuid"`
	CustomerID    string               `json:"customerID" validate:"required,uuid"`
	PaymentMethod string               `json:"paymentMethod" validate:"required"`
	Products      []CreateOrderProduct `json:"products" validate:"required,min=1,dive"`
}
