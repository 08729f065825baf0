package testsuite

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	outboxDomain "github.com/sakashimaa/fulfillment-saga/pkg/outbox/domain"
)

// MemDB is an in-memory stand-in for a pgx pool in unit tests. Begin hands
// out a private copy of the state and holds a lock until Commit or Rollback,
// so transactions are serialized and rolled-back work is discarded.
type MemDB[S any] struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state S
	clone func(S) S
}

func NewMemDB[S any](state S, clone func(S) S) *MemDB[S] {
	return &MemDB[S]{state: state, clone: clone}
}

func (db *MemDB[S]) Begin(_ context.Context) (pgx.Tx, error) {
	db.txMu.Lock()

	db.mu.RLock()
	work := db.clone(db.state)
	db.mu.RUnlock()

	return &MemTx[S]{db: db, State: work}, nil
}

// Read gives fn the committed state.
func (db *MemDB[S]) Read(fn func(S)) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	fn(db.state)
}

// Write mutates the committed state directly, e.g. to seed fixtures.
func (db *MemDB[S]) Write(fn func(S)) {
	db.mu.Lock()
	defer db.mu.Unlock()

	fn(db.state)
}

// MemTx implements pgx.Tx. Only Commit and Rollback are usable; fake
// repositories reach the working state through StateOf.
type MemTx[S any] struct {
	pgx.Tx

	db    *MemDB[S]
	State S
	done  bool
}

func (t *MemTx[S]) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}

	t.db.mu.Lock()
	t.db.state = t.State
	t.db.mu.Unlock()

	t.done = true
	t.db.txMu.Unlock()

	return nil
}

func (t *MemTx[S]) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}

	t.done = true
	t.db.txMu.Unlock()

	return nil
}

// StateOf returns the working state of a transaction begun on a MemDB.
func StateOf[S any](tx pgx.Tx) S {
	return tx.(*MemTx[S]).State
}

// OutboxState is embedded in test states that record outbox events.
type OutboxState struct {
	Events []*outboxDomain.OutboxEvent
}

func (o *OutboxState) Outbox() *OutboxState { return o }

func (o OutboxState) Clone() OutboxState {
	return OutboxState{Events: append([]*outboxDomain.OutboxEvent(nil), o.Events...)}
}

func (o *OutboxState) Topics() []string {
	topics := make([]string, 0, len(o.Events))
	for _, e := range o.Events {
		topics = append(topics, e.Topic)
	}

	return topics
}

type outboxHolder interface {
	Outbox() *OutboxState
}

// MemOutbox records outbox events into the transaction's working state.
type MemOutbox[S outboxHolder] struct{}

func (MemOutbox[S]) SaveOutboxEvent(_ context.Context, tx pgx.Tx, event *outboxDomain.OutboxEvent) error {
	st := StateOf[S](tx).Outbox()
	event.Id = int64(len(st.Events) + 1)
	st.Events = append(st.Events, event)

	return nil
}

func (MemOutbox[S]) GetUnpublishedEvents(_ context.Context, tx pgx.Tx, batchSize int) ([]*outboxDomain.OutboxEvent, error) {
	var pending []*outboxDomain.OutboxEvent
	for _, e := range StateOf[S](tx).Outbox().Events {
		if e.PublishedAt == nil && len(pending) < batchSize {
			pending = append(pending, e)
		}
	}

	return pending, nil
}

func (MemOutbox[S]) MarkEventPublished(_ context.Context, tx pgx.Tx, id int64) error {
	st := StateOf[S](tx).Outbox()
	for i, e := range st.Events {
		if e.Id == id {
			published := *e
			now := published.CreatedAt
			published.PublishedAt = &now
			st.Events[i] = &published
		}
	}

	return nil
}

func (MemOutbox[S]) MarkEventFailed(_ context.Context, tx pgx.Tx, id int64, errMsg string) error {
	st := StateOf[S](tx).Outbox()
	for i, e := range st.Events {
		if e.Id == id {
			failed := *e
			failed.Attempts++
			failed.LastError = &errMsg
			st.Events[i] = &failed
		}
	}

	return nil
}
