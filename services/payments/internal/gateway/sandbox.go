package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
)

const sandboxName = "sandbox"

// Sandbox opens billings in memory for local runs. The checkout URL is never
// served; payments are confirmed by posting to the webhook by hand.
type Sandbox struct {
	baseURL string

	mu       sync.Mutex
	billings map[sharedDomain.ID]*BillingResponse
	refunded map[string]int64
}

func NewSandbox(baseURL string) *Sandbox {
	if baseURL == "" {
		baseURL = "https://sandbox.payments.local"
	}

	return &Sandbox{
		baseURL:  baseURL,
		billings: make(map[sharedDomain.ID]*BillingResponse),
		refunded: make(map[string]int64),
	}
}

func (s *Sandbox) CreateBilling(_ context.Context, req BillingRequest) (*BillingResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.billings[req.OrderID]; ok {
		cp := *b
		return &cp, nil
	}

	billingID := uuid.NewString()
	b := &BillingResponse{
		PaymentURL:              s.baseURL + "/checkout/" + billingID,
		PaymentGatewayBillingID: billingID,
		PaymentGateway:          sandboxName,
	}
	s.billings[req.OrderID] = b

	cp := *b
	return &cp, nil
}

func (s *Sandbox) Refund(_ context.Context, req RefundRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.billings[req.OrderID]
	if !ok || b.PaymentGatewayBillingID != req.PaymentGatewayBillingID {
		return fmt.Errorf("%w: unknown billing %s", ErrGatewayRejected, req.PaymentGatewayBillingID)
	}

	if _, done := s.refunded[req.PaymentGatewayBillingID]; !done {
		s.refunded[req.PaymentGatewayBillingID] = req.AmountInCents
	}
	return nil
}

// Refunded reports the amount refunded for a billing, if any.
func (s *Sandbox) Refunded(billingID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount, ok := s.refunded[billingID]
	return amount, ok
}
