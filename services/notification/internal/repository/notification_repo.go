package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/services/notification/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationRepository interface {
	Exists(ctx context.Context, eventID sharedDomain.ID) (bool, error)
	Create(ctx context.Context, tx pgx.Tx, n *domain.Notification) error
	ListByOrder(ctx context.Context, orderID sharedDomain.ID) ([]domain.Notification, error)
}

type notificationRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewNotificationRepository(pool *pgxpool.Pool, logger *zap.Logger) NotificationRepository {
	return &notificationRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("notification/notification_repo"),
	}
}

func (r *notificationRepo) Exists(ctx context.Context, eventID sharedDomain.ID) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.Exists")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID.String()))

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, eventID.String()).Scan(&exists); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error checking notification: %w", err)
	}

	return exists, nil
}

func (r *notificationRepo) Create(ctx context.Context, tx pgx.Tx, n *domain.Notification) error {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", n.ID.String()),
		attribute.String("topic", n.Topic),
	)

	query := `
		INSERT INTO notifications (id, order_id, customer_id, topic, channel, subject, body, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.Exec(ctx, query,
		n.ID.String(),
		n.OrderID.String(),
		n.CustomerID.String(),
		n.Topic,
		n.Channel,
		n.Subject,
		n.Body,
		n.SentAt,
		n.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: event %s", ErrNotificationAlreadyExists, n.ID)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error creating notification", zap.String("event_id", n.ID.String()), zap.Error(err))

		return fmt.Errorf("error creating notification: %w", err)
	}

	return nil
}

func (r *notificationRepo) ListByOrder(ctx context.Context, orderID sharedDomain.ID) ([]domain.Notification, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.ListByOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID.String()))

	query := `
		SELECT id, order_id, customer_id, topic, channel, subject, body, sent_at, created_at
		FROM notifications
		WHERE order_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, orderID.String())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}

	notifications, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Notification])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning notifications: %w", err)
	}

	return notifications, nil
}
