package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ConsumerGroup struct {
	brokers []string
	groupID string
	router  *Router
	policy  RetryPolicy
	logger  *zap.Logger
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	router *Router,
	policy RetryPolicy,
	logger *zap.Logger,
) *ConsumerGroup {
	return &ConsumerGroup{
		brokers: brokers,
		groupID: groupID,
		router:  router,
		policy:  policy,
		logger:  logger,
	}
}

func consumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.BalanceStrategyRoundRobin}

	return config
}

// Run joins the group and consumes until ctx is done. Joining is retried
// under the policy; a broken session is re-joined with backoff.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	var group sarama.ConsumerGroup

	err := c.policy.Retry(ctx, func() error {
		var err error
		group, err = sarama.NewConsumerGroup(c.brokers, c.groupID, consumerConfig())
		return err
	}, func(err error, next time.Duration) {
		mylogger.Warn(ctx, c.logger, "Consumer group connect failed, retrying",
			zap.String("group_id", c.groupID),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", c.groupID, err)
	}

	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Error(ctx, c.logger, "Consumer group error", zap.String("group_id", c.groupID), zap.Error(err))
		}
	}()

	handler := &saramaHandler{
		router: c.router,
		policy: c.policy,
		logger: c.logger,
		tracer: otel.Tracer("pkg/kafka/consumer"),
	}

	topics := c.router.Topics()
	rejoin := c.policy.exponential()

	mylogger.Info(ctx, c.logger, "Consumer group started",
		zap.String("group_id", c.groupID),
		zap.Strings("topics", topics),
	)

	for {
		err := group.Consume(ctx, topics, handler)
		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer")
			return nil
		}

		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}

		if err == nil {
			rejoin.Reset()
			continue
		}

		wait := rejoin.NextBackOff()
		mylogger.Error(ctx, c.logger, "Error consuming in consumer loop",
			zap.Duration("rejoin_in", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

type saramaHandler struct {
	router *Router
	policy RetryPolicy
	logger *zap.Logger
	tracer trace.Tracer
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks a message once it was handled or deliberately dropped.
// A message whose handling keeps failing ends the session unmarked, so it is
// delivered again after the group re-joins.
func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := h.process(session.Context(), msg); err != nil {
				return err
			}

			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process returns an error only when the message must be redelivered.
func (h *saramaHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx, span := h.startSpan(ctx, msg)
	defer span.End()

	started := time.Now()
	defer func() {
		handleLatency.WithLabelValues(msg.Topic).Observe(time.Since(started).Seconds())
	}()

	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	err := h.policy.Retry(ctx, func() error {
		return h.router.Dispatch(ctx, msg.Topic, msg.Value)
	}, func(err error, next time.Duration) {
		mylogger.Warn(ctx, h.logger, "Handler failed, retrying", append(fields, zap.Duration("next", next), zap.Error(err))...)
	})

	switch {
	case err == nil:
		consumedTotal.WithLabelValues(msg.Topic, outcomeHandled).Inc()
		return nil
	case errors.Is(err, events.ErrMalformedEvent):
		consumedTotal.WithLabelValues(msg.Topic, outcomeMalformed).Inc()
		mylogger.Warn(ctx, h.logger, "Dropping malformed event", append(fields, zap.Error(err))...)
		return nil
	}

	kind := faults.KindOf(err)
	fields = append(fields, zap.String("fault", kind.String()), zap.Error(err))

	switch kind {
	case faults.Conflict:
		consumedTotal.WithLabelValues(msg.Topic, outcomeDuplicate).Inc()
		mylogger.Info(ctx, h.logger, "Event already applied, skipping", fields...)
		return nil
	case faults.NotFound:
		consumedTotal.WithLabelValues(msg.Topic, outcomeDropped).Inc()
		mylogger.Warn(ctx, h.logger, "Dropping event for unknown entity", fields...)
		return nil
	case faults.Validation, faults.InvalidStatus, faults.InsufficientResource:
		consumedTotal.WithLabelValues(msg.Topic, outcomeDropped).Inc()
		span.RecordError(err)
		mylogger.Error(ctx, h.logger, "Dropping event rejected by handler", fields...)
		return nil
	default:
		consumedTotal.WithLabelValues(msg.Topic, outcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		mylogger.Error(ctx, h.logger, "Failed to process message", fields...)
		return err
	}
}

func (h *saramaHandler) startSpan(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		if header == nil {
			continue
		}
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.source", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
