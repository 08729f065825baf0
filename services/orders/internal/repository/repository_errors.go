package repository

import "github.com/sakashimaa/fulfillment-saga/pkg/faults"

var (
	ErrOrderNotFound      = faults.New(faults.NotFound, "order not found")
	ErrOrderAlreadyExists = faults.New(faults.Conflict, "order already exists")
)
