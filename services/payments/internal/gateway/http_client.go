package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakashimaa/fulfillment-saga/pkg/config"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	refundKeyPrefix   = "refund:"
)

type createBillingBody struct {
	OrderID       string `json:"orderID"`
	CustomerID    string `json:"customerID"`
	AmountInCents int64  `json:"amountInCents"`
	PaymentMethod string `json:"paymentMethod"`
}

type refundBody struct {
	OrderID       string `json:"orderID"`
	AmountInCents int64  `json:"amountInCents"`
}

type httpGateway struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewHTTPGateway talks to a provider exposing POST {base}/billings and
// POST {base}/billings/{id}/refunds. Calls go through breaker so an
// unreachable provider fails fast.
func NewHTTPGateway(cfg config.PaymentGateway, breaker *gobreaker.CircuitBreaker, logger *zap.Logger) PaymentGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &httpGateway{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer("payments/gateway"),
	}
}

func (g *httpGateway) CreateBilling(ctx context.Context, req BillingRequest) (*BillingResponse, error) {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.CreateBilling")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", req.OrderID.String()),
		attribute.String("gateway", g.name),
	)

	resp, err := utils.ExecuteWithBreaker(g.breaker, func() (*BillingResponse, error) {
		return g.createBilling(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, g.logger, "Create billing at gateway failed",
			zap.String("order_id", req.OrderID.String()),
			zap.Error(err),
		)
		return nil, breakerErr(err)
	}

	if resp.PaymentGateway == "" {
		resp.PaymentGateway = g.name
	}

	return resp, nil
}

func (g *httpGateway) Refund(ctx context.Context, req RefundRequest) error {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.Refund")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", req.OrderID.String()),
		attribute.String("billing_id", req.PaymentGatewayBillingID),
		attribute.String("gateway", g.name),
	)

	_, err := utils.ExecuteWithBreaker(g.breaker, func() ([]byte, error) {
		return g.post(ctx,
			"/billings/"+url.PathEscape(req.PaymentGatewayBillingID)+"/refunds",
			refundKeyPrefix+req.OrderID.String(),
			refundBody{OrderID: req.OrderID.String(), AmountInCents: req.AmountInCents},
		)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, g.logger, "Refund at gateway failed",
			zap.String("order_id", req.OrderID.String()),
			zap.String("billing_id", req.PaymentGatewayBillingID),
			zap.Error(err),
		)
		return breakerErr(err)
	}

	return nil
}

func (g *httpGateway) createBilling(ctx context.Context, req BillingRequest) (*BillingResponse, error) {
	raw, err := g.post(ctx, "/billings", req.OrderID.String(), createBillingBody{
		OrderID:       req.OrderID.String(),
		CustomerID:    req.CustomerID.String(),
		AmountInCents: req.AmountInCents,
		PaymentMethod: string(req.PaymentMethod),
	})
	if err != nil {
		return nil, err
	}

	var out BillingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrGatewayUnavailable, err)
	}
	if out.PaymentURL == "" || out.PaymentGatewayBillingID == "" {
		return nil, fmt.Errorf("%w: response missing paymentURL or billing id", ErrGatewayUnavailable)
	}

	return &out, nil
}

func (g *httpGateway) post(ctx context.Context, path, idempotencyKey string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(idempotencyHeader, idempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, httpResp.StatusCode)
	case httpResp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, httpResp.StatusCode, string(raw))
	}

	return raw, nil
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}
