// Package faults classifies errors into the kinds the saga reacts to.
//
// Services declare sentinel errors with New and compare them with errors.Is.
// Transport code only needs KindOf to decide whether a message is dropped,
// treated as a duplicate or retried.
package faults

import (
	"errors"
)

type Kind uint8

const (
	Infrastructure Kind = iota
	Validation
	NotFound
	Conflict
	InvalidStatus
	InsufficientResource
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InvalidStatus:
		return "invalid_status"
	case InsufficientResource:
		return "insufficient_resource"
	default:
		return "infrastructure"
	}
}

type Error struct {
	kind Kind
	msg  string
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of the first classified error in the chain.
// Unclassified errors are infrastructure faults.
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.kind
	}

	return Infrastructure
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether repeating the operation may succeed.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == Infrastructure
}
