package repository

import (
	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/sakashimaa/fulfillment-saga/services/inventory/internal/domain"
)

var (
	ErrProductNotFound    = domain.ErrProductNotFound
	ErrOrderNotFound      = faults.New(faults.NotFound, "order not found")
	ErrOrderAlreadyExists = faults.New(faults.Conflict, "order already exists")
)
