package repository

import "github.com/sakashimaa/fulfillment-saga/pkg/faults"

var ErrNotificationAlreadyExists = faults.New(faults.Conflict, "notification already exists")
