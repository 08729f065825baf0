package kafka

import (
	"context"
	"fmt"
	"sort"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

var ErrNoRoute = faults.New(faults.Validation, "no handler for topic")

type route func(ctx context.Context, env *events.Envelope) error

// Router decodes, validates and dispatches envelopes to typed handlers.
type Router struct {
	routes map[string]route
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]route)}
}

// Handle registers fn for topic. The payload reaching fn has passed its
// schema validation.
func Handle[T any](r *Router, topic string, fn func(ctx context.Context, env *events.Envelope, payload *T) error) {
	r.routes[topic] = func(ctx context.Context, env *events.Envelope) error {
		payload, err := events.DecodePayload[T](env)
		if err != nil {
			return err
		}

		return fn(ctx, env, payload)
	}
}

func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	return topics
}

func (r *Router) Dispatch(ctx context.Context, topic string, value []byte) error {
	fn, ok := r.routes[topic]
	if !ok {
		return fmt.Errorf("%w %s", ErrNoRoute, topic)
	}

	env, err := events.DecodeEnvelope(topic, value)
	if err != nil {
		return err
	}

	return fn(ctx, env)
}
