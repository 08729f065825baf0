package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
)

var ErrInvalidID = faults.New(faults.Validation, "invalid identifier")

// ID is an opaque identifier shared across services. Its text form is a UUID.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidID, s)
	}

	return ID(u.String()), nil
}

// ParseIDs validates every value and reports the first malformed one.
func ParseIDs(values ...string) ([]ID, error) {
	ids := make([]ID, 0, len(values))
	for _, v := range values {
		id, err := ParseID(v)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }
