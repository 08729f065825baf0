package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

type producer struct {
	syncProducer sarama.SyncProducer
	policy       RetryPolicy
	logger       *zap.Logger
	tracer       trace.Tracer
}

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Producer.Retry.Max = 3
	config.Net.MaxOpenRequests = 1

	return config
}

// NewProducer connects to the brokers, retrying under policy.
func NewProducer(ctx context.Context, brokers []string, policy RetryPolicy, logger *zap.Logger) (Producer, error) {
	var sp sarama.SyncProducer

	err := policy.Retry(ctx, func() error {
		var err error
		sp, err = sarama.NewSyncProducer(brokers, producerConfig())
		return err
	}, func(err error, next time.Duration) {
		mylogger.Warn(ctx, logger, "Kafka producer connect failed, retrying",
			zap.Strings("brokers", brokers),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return newProducer(sp, policy, logger), nil
}

func newProducer(sp sarama.SyncProducer, policy RetryPolicy, logger *zap.Logger) *producer {
	return &producer{
		syncProducer: sp,
		policy:       policy,
		logger:       logger,
		tracer:       otel.Tracer("pkg/kafka/producer"),
	}
}

func (p *producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "kafka_publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.message_key", key),
	)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	var partition int32
	var offset int64

	err := p.policy.Retry(ctx, func() error {
		msg := &sarama.ProducerMessage{
			Topic:   topic,
			Value:   sarama.ByteEncoder(value),
			Headers: headers,
		}
		if key != "" {
			msg.Key = sarama.StringEncoder(key)
		}

		var err error
		partition, offset, err = p.syncProducer.SendMessage(msg)
		return err
	}, func(err error, next time.Duration) {
		publishRetriesTotal.WithLabelValues(topic).Inc()

		mylogger.Warn(ctx, p.logger, "Publish failed, retrying",
			zap.String("topic", topic),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if err != nil {
		span.RecordError(err)
		publishedTotal.WithLabelValues(topic, "error").Inc()

		return fmt.Errorf("error sending message to %s: %w", topic, err)
	}

	publishedTotal.WithLabelValues(topic, "ok").Inc()

	mylogger.Debug(ctx, p.logger, "Message sent",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (p *producer) Close() error {
	return p.syncProducer.Close()
}
