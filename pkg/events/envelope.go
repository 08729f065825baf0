package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

var ErrMalformedEvent = faults.New(faults.Validation, "malformed event")

type Envelope struct {
	EventContractType string          `json:"eventContractType" validate:"required"`
	Payload           json.RawMessage `json:"payload" validate:"required"`
	ID                string          `json:"id" validate:"required,uuid"`
	Timestamp         time.Time       `json:"timestamp" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewEnvelope wraps payload for topic with a fresh identity.
func NewEnvelope(topic string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	return &Envelope{
		EventContractType: topic,
		Payload:           raw,
		ID:                uuid.NewString(),
		Timestamp:         time.Now().UTC(),
	}, nil
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses and validates the envelope delivered on topic.
func DecodeEnvelope(topic string, data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformedEvent, err)
	}

	if env.EventContractType != topic {
		return nil, fmt.Errorf("%w: contract %s delivered on %s", ErrMalformedEvent, env.EventContractType, topic)
	}

	return &env, nil
}

// DecodePayload unmarshals the payload into T and runs its validate tags.
func DecodePayload[T any](env *Envelope) (*T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.EventContractType, err)
	}

	if err := validate.Struct(&payload); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.EventContractType, verr)
		}

		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.EventContractType, err)
	}

	return &payload, nil
}
