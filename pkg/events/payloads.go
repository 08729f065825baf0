package events

import "time"

// Payloads carry only primitive values; identifiers are UUID strings and are
// re-parsed by every consumer.

type ProductQuantity struct {
	ID       string `json:"id" validate:"required,uuid"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

type PricedProduct struct {
	ID           string `json:"id" validate:"required,uuid"`
	Quantity     int64  `json:"quantity" validate:"gt=0"`
	PriceInCents int64  `json:"priceInCents" validate:"gte=0"`
}

type OrderCreated struct {
	OrderID       string            `json:"orderID" validate:"required,uuid"`
	CustomerID    string            `json:"customerID" validate:"required,uuid"`
	PaymentMethod string            `json:"paymentMethod" validate:"required"`
	Status        string            `json:"status" validate:"required"`
	Products      []ProductQuantity `json:"products" validate:"required,min=1,dive"`
	CreatedAt     time.Time         `json:"createdAt" validate:"required"`
	UpdatedAt     time.Time         `json:"updatedAt" validate:"required"`
}

type StockAvailable struct {
	OrderID    string `json:"orderID" validate:"required,uuid"`
	CustomerID string `json:"customerID" validate:"required,uuid"`
	// PaymentMethod is carried through from order-created so payments can
	// open a billing without a lookup.
	PaymentMethod string          `json:"paymentMethod" validate:"required"`
	Products      []PricedProduct `json:"products" validate:"required,min=1,dive"`
	CreatedAt     time.Time       `json:"createdAt" validate:"required"`
	UpdatedAt     time.Time       `json:"updatedAt" validate:"required"`
}

// TotalInCents sums quantity times unit price over every line.
func (e StockAvailable) TotalInCents() int64 {
	var total int64
	for _, p := range e.Products {
		total += p.Quantity * p.PriceInCents
	}

	return total
}

type MissingProduct struct {
	ID        string `json:"id" validate:"required,uuid"`
	Requested int64  `json:"requested" validate:"gt=0"`
	Available int64  `json:"available" validate:"gte=0"`
	Reason    string `json:"reason" validate:"required,oneof=NOT_FOUND INSUFFICIENT_STOCK"`
}

type StockUnavailable struct {
	OrderID         string           `json:"orderID" validate:"required,uuid"`
	CustomerID      string           `json:"customerID" validate:"required,uuid"`
	MissingProducts []MissingProduct `json:"missingProducts" validate:"required,min=1,dive"`
}

type ReservationExpired struct {
	OrderID    string            `json:"orderID" validate:"required,uuid"`
	CustomerID string            `json:"customerID" validate:"required,uuid"`
	Products   []ProductQuantity `json:"products" validate:"required,min=1,dive"`
	ExpiredAt  time.Time         `json:"expiredAt" validate:"required"`
}

// ReservationLost is recorded when a payment arrives for a hold the reaper
// already released and the stock could not be reserved again.
type ReservationLost struct {
	OrderID         string           `json:"orderID" validate:"required,uuid"`
	CustomerID      string           `json:"customerID" validate:"required,uuid"`
	MissingProducts []MissingProduct `json:"missingProducts" validate:"required,min=1,dive"`
	LostAt          time.Time        `json:"lostAt" validate:"required"`
}

type AwaitingPayment struct {
	OrderID       string `json:"orderID" validate:"required,uuid"`
	CustomerID    string `json:"customerID" validate:"required,uuid"`
	PaymentURL    string `json:"paymentURL" validate:"required,url"`
	AmountInCents int64  `json:"amountInCents" validate:"gte=0"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
}

type PaymentDone struct {
	OrderID       string    `json:"orderID" validate:"required,uuid"`
	CustomerID    string    `json:"customerID" validate:"required,uuid"`
	AmountInCents int64     `json:"amountInCents" validate:"gte=0"`
	PaymentMethod string    `json:"paymentMethod" validate:"required"`
	PaymentAt     time.Time `json:"paymentAt" validate:"required"`
}

type PaymentFailed struct {
	OrderID    string    `json:"orderID" validate:"required,uuid"`
	CustomerID string    `json:"customerID" validate:"required,uuid"`
	Reason     string    `json:"reason" validate:"required"`
	FailedAt   time.Time `json:"failedAt" validate:"required"`
}

type PaymentRefunded struct {
	OrderID       string    `json:"orderID" validate:"required,uuid"`
	CustomerID    string    `json:"customerID" validate:"required,uuid"`
	AmountInCents int64     `json:"amountInCents" validate:"gte=0"`
	Reason        string    `json:"reason" validate:"required"`
	RefundedAt    time.Time `json:"refundedAt" validate:"required"`
}

type ShipmentCreated struct {
	OrderID    string `json:"orderID" validate:"required,uuid"`
	CustomerID string `json:"customerID" validate:"required,uuid"`
}

type DeliveredShipment struct {
	ShipmentID  string    `json:"shipmentID" validate:"required,uuid"`
	OrderID     string    `json:"orderID" validate:"required,uuid"`
	CustomerID  string    `json:"customerID" validate:"required,uuid"`
	DeliveredAt time.Time `json:"deliveredAt" validate:"required"`
}

type DeliveryFailed struct {
	ShipmentID string    `json:"shipmentID" validate:"required,uuid"`
	OrderID    string    `json:"orderID" validate:"required,uuid"`
	CustomerID string    `json:"customerID" validate:"required,uuid"`
	Reason     string    `json:"reason" validate:"required,max=500"`
	FailedAt   time.Time `json:"failedAt" validate:"required"`
}
