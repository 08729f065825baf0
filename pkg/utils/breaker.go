package utils

import (
	"time"

	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewBreaker opens after consecutiveFailures failures in a row and stays open
// for cooldown before letting one trial request through. Only infrastructure
// faults count as failures; a request the dependency answered and refused
// does not.
func NewBreaker(name string, consecutiveFailures uint32, cooldown time.Duration, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if consecutiveFailures == 0 {
		consecutiveFailures = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return !faults.Retryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func ExecuteWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})

	if err != nil {
		return *new(T), err
	}

	return res.(T), nil
}
