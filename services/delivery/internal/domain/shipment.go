package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/fsm"
)

var ErrInvalidFailureReason = faults.New(faults.Validation, "failure reason must be 1 to 500 characters")

const maxFailureReason = 500

type ShipmentStatus string

const (
	ShipmentStatusCreated   ShipmentStatus = "CREATED"
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
	ShipmentStatusFailed    ShipmentStatus = "FAILED"
)

var ShipmentTransitions = fsm.New("shipment",
	fsm.Edge[ShipmentStatus]{From: ShipmentStatusCreated, To: ShipmentStatusDelivered},
	fsm.Edge[ShipmentStatus]{From: ShipmentStatusCreated, To: ShipmentStatusFailed},
)

type Shipment struct {
	ID            sharedDomain.ID `db:"id" json:"id"`
	OrderID       sharedDomain.ID `db:"order_id" json:"orderID"`
	CustomerID    sharedDomain.ID `db:"customer_id" json:"customerID"`
	Status        ShipmentStatus  `db:"status" json:"status"`
	FailureReason *string         `db:"failure_reason" json:"failureReason,omitempty"`
	DeliveredAt   *time.Time      `db:"delivered_at" json:"deliveredAt,omitempty"`
	FailedAt      *time.Time      `db:"failed_at" json:"failedAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

func NewShipment(order *Order, now time.Time) *Shipment {
	return &Shipment{
		ID:         sharedDomain.NewID(),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     ShipmentStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Shipment) transition(target ShipmentStatus, now time.Time) error {
	if err := ShipmentTransitions.Check(s.Status, target); err != nil {
		return fmt.Errorf("shipment %s: %w", s.ID, err)
	}

	s.Status = target
	s.UpdatedAt = now
	return nil
}

func (s *Shipment) MarkDelivered(now time.Time) error {
	if err := s.transition(ShipmentStatusDelivered, now); err != nil {
		return err
	}

	s.DeliveredAt = &now
	return nil
}

func (s *Shipment) MarkFailed(reason string, now time.Time) error {
	if reason == "" || len([]rune(reason)) > maxFailureReason {
		return ErrInvalidFailureReason
	}
	if err := s.transition(ShipmentStatusFailed, now); err != nil {
		return err
	}

	s.FailureReason = &reason
	s.FailedAt = &now
	return nil
}

type FailShipmentInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
