package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sakashimaa/fulfillment-saga/pkg/db"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, id int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, id int64, errMsg string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

var relayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "saga_outbox_relayed_total",
	Help: "Outbox events relayed to the broker, by result.",
}, []string{"result"})

type OutboxProcessor struct {
	pool      db.TxBeginner
	repo      OutboxRepository
	publisher Publisher
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	tracer    trace.Tracer
}

func NewOutboxProcessor(
	pool db.TxBeginner,
	repo OutboxRepository,
	publisher Publisher,
	logger *zap.Logger,
	batchSize int,
	interval time.Duration,
) *OutboxProcessor {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &OutboxProcessor{
		pool:      pool,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		tracer:    otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(ctx, p.logger, "Starting outbox processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(ctx, p.logger, "Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch relays pending events in insertion order and returns how many
// were published. The batch stops at the first failed publish so later events
// of the same order never overtake it.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(cleanupCtx, p.logger, "Outbox worker failed to rollback transaction",
				zap.Error(err),
				zap.String("method_name", "ProcessBatch"),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for _, event := range events {
		err := p.publisher.Publish(ctx, event.Topic, event.AggregateID, event.Payload)
		if err != nil {
			relayedTotal.WithLabelValues("error").Inc()

			mylogger.Error(ctx, p.logger, "outbox worker publish failed",
				zap.Int64("id", event.Id),
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.Int64("attempts", event.Attempts+1),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error()); dbErr != nil {
				return published, fmt.Errorf("failed to mark event %d failed: %w", event.Id, dbErr)
			}

			break
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.Id); err != nil {
			return published, fmt.Errorf("failed to mark event %d published: %w", event.Id, err)
		}

		relayedTotal.WithLabelValues("ok").Inc()
		published++

		mylogger.Debug(ctx, p.logger, "outbox worker event published",
			zap.String("event_id", event.EventID),
			zap.String("topic", event.Topic),
		)
	}

	span.SetAttributes(attribute.Int("published", published))

	if err := tx.Commit(ctx); err != nil {
		return published, fmt.Errorf("failed to commit outbox batch: %w", err)
	}

	return published, nil
}
