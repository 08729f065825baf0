// Package fsm guards status transitions. Every target status has exactly one
// status it may be entered from.
package fsm

import (
	"fmt"

	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

var (
	ErrInvalidStatus     = faults.New(faults.InvalidStatus, "invalid status")
	ErrUnknownTransition = faults.New(faults.Validation, "unknown transition")
)

type Edge[S ~string] struct {
	From S
	To   S
}

type Machine[S ~string] struct {
	name string
	from map[S]S
}

func New[S ~string](name string, edges ...Edge[S]) Machine[S] {
	from := make(map[S]S, len(edges))
	for _, e := range edges {
		if _, dup := from[e.To]; dup {
			panic(fmt.Sprintf("fsm %s: status %s has more than one precondition", name, e.To))
		}

		from[e.To] = e.From
	}

	return Machine[S]{name: name, from: from}
}

// Precondition returns the only status from which target can be entered.
func (m Machine[S]) Precondition(target S) (S, bool) {
	s, ok := m.from[target]
	return s, ok
}

// Check fails with ErrInvalidStatus unless current is exactly the
// precondition of target.
func (m Machine[S]) Check(current, target S) error {
	want, ok := m.from[target]
	if !ok {
		return fmt.Errorf("%s %s: %w", m.name, target, ErrUnknownTransition)
	}

	if current != want {
		return fmt.Errorf("%w: %s is %s, %s requires %s", ErrInvalidStatus, m.name, current, target, want)
	}

	return nil
}
