package sender

import (
	"context"

	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const ChannelLog = "log"

type Sender interface {
	Channel() string
	Send(ctx context.Context, msg domain.Message) error
}

// logSender delivers messages as structured log lines.
type logSender struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewLogSender(logger *zap.Logger) Sender {
	return &logSender{
		logger: logger,
		tracer: otel.Tracer("notification/sender"),
	}
}

func (s *logSender) Channel() string { return ChannelLog }

func (s *logSender) Send(ctx context.Context, msg domain.Message) error {
	ctx, span := s.tracer.Start(ctx, "logSender.Send")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", msg.CustomerID.String()),
		attribute.String("order_id", msg.OrderID.String()),
	)

	mylogger.Info(ctx, s.logger, "Notification sent",
		zap.String("customer_id", msg.CustomerID.String()),
		zap.String("order_id", msg.OrderID.String()),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)

	return nil
}
