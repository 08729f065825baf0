package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/domain"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/repository"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/sender"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Notice is a rendered customer message tied to the event that caused it.
type Notice struct {
	EventID    string
	Topic      string
	OrderID    string
	CustomerID string
	Subject    string
	Body       string
}

type NotificationService interface {
	// Notify sends the notice once per event id. A redelivered event fails
	// with a conflict and sends nothing.
	Notify(ctx context.Context, notice Notice) (*domain.Notification, error)
	ListByOrder(ctx context.Context, orderID sharedDomain.ID) ([]domain.Notification, error)
}

type notificationService struct {
	pool          db.TxBeginner
	notifications repository.NotificationRepository
	sender        sender.Sender
	now           func() time.Time
	logger        *zap.Logger
	tracer        trace.Tracer
}

func NewNotificationService(
	pool db.TxBeginner,
	notifications repository.NotificationRepository,
	sender sender.Sender,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		pool:          pool,
		notifications: notifications,
		sender:        sender,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
		tracer:        otel.Tracer("notification/service"),
	}
}

func (s *notificationService) rollback(ctx context.Context, tx pgx.Tx) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Error(cleanupCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
	}
}

func (s *notificationService) Notify(ctx context.Context, notice Notice) (*domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.Notify")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", notice.EventID),
		attribute.String("topic", notice.Topic),
		attribute.String("order_id", notice.OrderID),
	)

	ids, err := sharedDomain.ParseIDs(notice.EventID, notice.OrderID, notice.CustomerID)
	if err != nil {
		return nil, err
	}

	exists, err := s.notifications.Exists(ctx, ids[0])
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: event %s", repository.ErrNotificationAlreadyExists, ids[0])
	}

	now := s.now()
	notification := &domain.Notification{
		ID:         ids[0],
		OrderID:    ids[1],
		CustomerID: ids[2],
		Topic:      notice.Topic,
		Channel:    s.sender.Channel(),
		Subject:    notice.Subject,
		Body:       notice.Body,
		SentAt:     now,
		CreatedAt:  now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	// The row is inserted before sending so a concurrent redelivery blocks on
	// the unique key and then fails as a conflict.
	if err := s.notifications.Create(ctx, tx, notification); err != nil {
		return nil, err
	}

	err = s.sender.Send(ctx, domain.Message{
		CustomerID: notification.CustomerID,
		OrderID:    notification.OrderID,
		Subject:    notification.Subject,
		Body:       notification.Body,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error sending notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing notification: %w", err)
	}

	return notification, nil
}

func (s *notificationService) ListByOrder(ctx context.Context, orderID sharedDomain.ID) ([]domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.ListByOrder")
	defer span.End()

	return s.notifications.ListByOrder(ctx, orderID)
}

// NoticeFor builds the notice of an event from its rendered subject and body.
func NoticeFor(env *events.Envelope, orderID, customerID string, render func() (string, string)) Notice {
	subject, body := render()

	return Notice{
		EventID:    env.ID,
		Topic:      env.EventContractType,
		OrderID:    orderID,
		CustomerID: customerID,
		Subject:    subject,
		Body:       body,
	}
}
