package domain

import (
	"errors"
	"fmt"
	"sort"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"go.uber.org/multierr"
)

const (
	MissingReasonNotFound          = "NOT_FOUND"
	MissingReasonInsufficientStock = "INSUFFICIENT_STOCK"
)

// StockLine is a requested quantity of one product.
type StockLine struct {
	ProductID sharedDomain.ID
	Quantity  int64
}

// LineFault names a product that could not cover its requested quantity.
// It unwraps to ErrProductNotFound or ErrInsufficientStock.
type LineFault struct {
	ProductID sharedDomain.ID
	Requested int64
	Available int64
	err       error
}

func (f *LineFault) Error() string {
	return fmt.Sprintf("product %s: %v (requested %d, available %d)", f.ProductID, f.err, f.Requested, f.Available)
}

func (f *LineFault) Unwrap() error { return f.err }

func (f *LineFault) Reason() string {
	if errors.Is(f.err, ErrProductNotFound) {
		return MissingReasonNotFound
	}
	return MissingReasonInsufficientStock
}

// MergeLines sums the quantities of repeated products and orders the result
// by product id, which is also the row lock order.
func MergeLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	totals := make(map[sharedDomain.ID]int64, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}
		totals[l.ProductID] += l.Quantity
	}

	merged := make([]StockLine, 0, len(totals))
	for id, q := range totals {
		merged = append(merged, StockLine{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })

	return merged, nil
}

// PlanReservation checks every merged line against the locked products and
// returns all shortfalls at once. products is not modified.
func PlanReservation(products map[sharedDomain.ID]*Product, lines []StockLine) error {
	var faults error
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			faults = multierr.Append(faults, &LineFault{ProductID: l.ProductID, Requested: l.Quantity, err: ErrProductNotFound})
			continue
		}
		if p.AvailableCount < l.Quantity {
			faults = multierr.Append(faults, &LineFault{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: p.AvailableCount,
				err:       ErrInsufficientStock,
			})
		}
	}
	return faults
}

// LineFaults extracts every LineFault from err. An empty result means err is
// not a stock shortfall.
func LineFaults(err error) []*LineFault {
	var out []*LineFault
	for _, e := range multierr.Errors(err) {
		var lf *LineFault
		if errors.As(e, &lf) {
			out = append(out, lf)
		}
	}
	return out
}
