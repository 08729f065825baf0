package domain

import (
	"time"

	sharedDomain "github.com/sakashimaa/fulfillment-saga/pkg/domain"
)

// Notification is the record of one customer message. Its id is the id of
// the event that triggered it, so each event notifies at most once.
type Notification struct {
	ID         sharedDomain.ID `db:"id" json:"id"`
	OrderID    sharedDomain.ID `db:"order_id" json:"orderID"`
	CustomerID sharedDomain.ID `db:"customer_id" json:"customerID"`
	Topic      string          `db:"topic" json:"topic"`
	Channel    string          `db:"channel" json:"channel"`
	Subject    string          `db:"subject" json:"subject"`
	Body       string          `db:"body" json:"body"`
	SentAt     time.Time       `db:"sent_at" json:"sentAt"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

type Message struct {
	CustomerID sharedDomain.ID
	OrderID    sharedDomain.ID
	Subject    string
	Body       string
}
