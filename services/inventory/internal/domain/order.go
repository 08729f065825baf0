package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/fsm"
)

type OrderStatus string

const (
	OrderStatusCreated                  OrderStatus = "CREATED"
	OrderStatusInventoryConfirmed       OrderStatus = "INVENTORY_CONFIRMED"
	OrderStatusInventoryProductsMissing OrderStatus = "INVENTORY_PRODUCTS_MISSING"
	OrderStatusReservationExpired       OrderStatus = "RESERVATION_EXPIRED"
	OrderStatusReservationRestored      OrderStatus = "RESERVATION_RESTORED"
	OrderStatusReservationLost          OrderStatus = "RESERVATION_LOST"
)

var OrderTransitions = fsm.New("inventory order",
	fsm.Edge[OrderStatus]{From: OrderStatusCreated, To: OrderStatusInventoryConfirmed},
	fsm.Edge[OrderStatus]{From: OrderStatusCreated, To: OrderStatusInventoryProductsMissing},
	fsm.Edge[OrderStatus]{From: OrderStatusInventoryConfirmed, To: OrderStatusReservationExpired},
	fsm.Edge[OrderStatus]{From: OrderStatusReservationExpired, To: OrderStatusReservationRestored},
	fsm.Edge[OrderStatus]{From: OrderStatusReservationExpired, To: OrderStatusReservationLost},
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusCreated, OrderStatusInventoryConfirmed, OrderStatusInventoryProductsMissing,
		OrderStatusReservationExpired, OrderStatusReservationRestored, OrderStatusReservationLost:
		return st, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidOrderStatus, s)
	}
}

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

type Order struct {
	ID                 sharedDomain.ID            `db:"id" json:"id"`
	CustomerID         sharedDomain.ID            `db:"customer_id" json:"customerID"`
	PaymentMethod      sharedDomain.PaymentMethod `db:"payment_method" json:"paymentMethod"`
	Status             OrderStatus                `db:"status" json:"status"`
	TotalAmountInCents *int64                     `db:"total_amount_in_cents" json:"totalAmountInCents"`
	Lines              []OrderProductReservation  `db:"-" json:"lines"`
	CreatedAt          time.Time                  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time                  `db:"updated_at" json:"updatedAt"`
	DeletedAt          *time.Time                 `db:"deleted_at" json:"-"`
}

type OrderProductReservation struct {
	ID                  sharedDomain.ID   `db:"id" json:"id"`
	OrderID             sharedDomain.ID   `db:"order_id" json:"orderID"`
	ProductID           sharedDomain.ID   `db:"product_id" json:"productID"`
	Quantity            int64             `db:"quantity" json:"quantity"`
	PricePerUnitInCents int64             `db:"price_per_unit_in_cents" json:"pricePerUnitInCents"`
	Status              ReservationStatus `db:"status" json:"status"`
	ExpiresAt           *time.Time        `db:"expires_at" json:"expiresAt"`
}

// NewOrder builds a CREATED order whose lines are PENDING.
func NewOrder(id, customerID sharedDomain.ID, method sharedDomain.PaymentMethod, lines []StockLine, now time.Time) *Order {
	o := &Order{
		ID:            id,
		CustomerID:    customerID,
		PaymentMethod: method,
		Status:        OrderStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, l := range lines {
		o.Lines = append(o.Lines, OrderProductReservation{
			ID:        sharedDomain.NewID(),
			OrderID:   id,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Status:    ReservationStatusPending,
		})
	}

	return o
}

// StockLines returns the lines as requested, one per reservation row.
func (o *Order) StockLines() []StockLine {
	out := make([]StockLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, StockLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

// ConfirmReservation records the unit prices, sets the total once and starts
// the hold clock on every line.
func (o *Order) ConfirmReservation(prices map[sharedDomain.ID]int64, now time.Time, ttl time.Duration) error {
	if err := OrderTransitions.Check(o.Status, OrderStatusInventoryConfirmed); err != nil {
		return err
	}
	if o.TotalAmountInCents != nil {
		return fmt.Errorf("%w: order %s", ErrTotalAlreadySet, o.ID)
	}
	if err := o.moveLines(ReservationStatusPending, ReservationStatusConfirmed); err != nil {
		return err
	}

	expiresAt := now.Add(ttl)
	var total int64
	for i := range o.Lines {
		price, ok := prices[o.Lines[i].ProductID]
		if !ok {
			return fmt.Errorf("%w: no price for product %s", ErrProductNotFound, o.Lines[i].ProductID)
		}
		o.Lines[i].PricePerUnitInCents = price
		o.Lines[i].ExpiresAt = &expiresAt
		total += price * o.Lines[i].Quantity
	}

	o.TotalAmountInCents = &total
	o.Status = OrderStatusInventoryConfirmed
	o.UpdatedAt = now
	return nil
}

func (o *Order) MarkProductsMissing(now time.Time) error {
	if err := OrderTransitions.Check(o.Status, OrderStatusInventoryProductsMissing); err != nil {
		return err
	}
	if err := o.moveLines(ReservationStatusPending, ReservationStatusCancelled); err != nil {
		return err
	}

	o.Status = OrderStatusInventoryProductsMissing
	o.UpdatedAt = now
	return nil
}

// ExpireReservation cancels a confirmed hold whose clock ran out.
func (o *Order) ExpireReservation(now time.Time) error {
	if err := OrderTransitions.Check(o.Status, OrderStatusReservationExpired); err != nil {
		return err
	}
	if err := o.moveLines(ReservationStatusConfirmed, ReservationStatusCancelled); err != nil {
		return err
	}

	o.Status = OrderStatusReservationExpired
	o.UpdatedAt = now
	return nil
}

// SettleReservation stops the hold clock once the order is paid. The held
// units stay held.
func (o *Order) SettleReservation(now time.Time) error {
	if o.Status != OrderStatusInventoryConfirmed {
		return fmt.Errorf("%w: order %s is %s", fsm.ErrInvalidStatus, o.ID, o.Status)
	}

	settled := true
	for _, l := range o.Lines {
		if l.ExpiresAt != nil {
			settled = false
		}
	}
	if settled {
		return fmt.Errorf("%w: order %s", ErrReservationAlreadySettled, o.ID)
	}

	for i := range o.Lines {
		o.Lines[i].ExpiresAt = nil
	}
	o.UpdatedAt = now
	return nil
}

// RestoreReservation records that a payment arriving after expiry got its
// units held again. The restored hold is already settled.
func (o *Order) RestoreReservation(now time.Time) error {
	if err := OrderTransitions.Check(o.Status, OrderStatusReservationRestored); err != nil {
		return err
	}
	if err := o.moveLines(ReservationStatusCancelled, ReservationStatusConfirmed); err != nil {
		return err
	}

	for i := range o.Lines {
		o.Lines[i].ExpiresAt = nil
	}
	o.Status = OrderStatusReservationRestored
	o.UpdatedAt = now
	return nil
}

// MarkReservationLost records a paid order whose released units could not be
// held again. Its lines stay CANCELLED.
func (o *Order) MarkReservationLost(now time.Time) error {
	if err := OrderTransitions.Check(o.Status, OrderStatusReservationLost); err != nil {
		return err
	}

	o.Status = OrderStatusReservationLost
	o.UpdatedAt = now
	return nil
}

// Expired reports whether the hold of a confirmed order ran out at now.
func (o *Order) Expired(now time.Time) bool {
	if o.Status != OrderStatusInventoryConfirmed {
		return false
	}
	for _, l := range o.Lines {
		if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
			return true
		}
	}
	return false
}

// moveLines switches every line together; a single line outside from fails
// the whole move.
func (o *Order) moveLines(from, to ReservationStatus) error {
	for _, l := range o.Lines {
		if l.Status != from {
			return fmt.Errorf("%w: line %s is %s, %s requires %s", ErrReservationLineStatus, l.ID, l.Status, to, from)
		}
	}
	for i := range o.Lines {
		o.Lines[i].Status = to
	}
	return nil
}
