package domain

import (
	"encoding/json"
	"time"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
)

type OutboxEvent struct {
	Id            int64           `db:"id"`
	EventID       string          `db:"event_id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	Topic         string          `db:"topic"`
	Payload       json.RawMessage `db:"payload"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
}

// NewOutboxEvent wraps payload in a fresh envelope for topic. The aggregate id
// becomes the message key, so events of one order stay on one partition.
func NewOutboxEvent(aggregateType, aggregateID, topic string, payload any) (*OutboxEvent, error) {
	env, err := events.NewEnvelope(topic, payload)
	if err != nil {
		return nil, err
	}

	data, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		EventID:       env.ID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Topic:         topic,
		Payload:       data,
		CreatedAt:     env.Timestamp,
	}, nil
}
