package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
)

type Product struct {
	ID               sharedDomain.ID `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	PriceInCents     int64           `db:"price_in_cents" json:"priceInCents"`
	AvailableCount   int64           `db:"available_count" json:"availableCount"`
	UnavailableCount int64           `db:"unavailable_count" json:"unavailableCount"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
	DeletedAt        *time.Time      `db:"deleted_at" json:"-"`
}

// Reserve moves quantity units from available to held.
func (p *Product) Reserve(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if p.AvailableCount < quantity {
		return &LineFault{ProductID: p.ID, Requested: quantity, Available: p.AvailableCount, err: ErrInsufficientStock}
	}

	p.AvailableCount -= quantity
	p.UnavailableCount += quantity
	return nil
}

// Release moves quantity held units back to available.
func (p *Product) Release(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if p.UnavailableCount < quantity {
		return fmt.Errorf("%w: product %s holds %d, release of %d", ErrHeldStockMismatch, p.ID, p.UnavailableCount, quantity)
	}

	p.UnavailableCount -= quantity
	p.AvailableCount += quantity
	return nil
}

type CreateProductInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	PriceInCents   int64  `json:"priceInCents" validate:"gte=0"`
	AvailableCount int64  `json:"availableCount" validate:"gte=0"`
}

type RestockInput struct {
	Quantity int64 `json:"quantity" validate:"gt=0"`
}
