package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sakashimaa/fulfillment-saga/pkg/events"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/domain"
	"github.com/sakashimaa/fulfillment-saga/pkg/outbox/worker"
	"github.com/sakashimaa/fulfillment-saga/pkg/testsuite"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type state struct {
	testsuite.OutboxState
}

func cloneState(s *state) *state {
	return &state{OutboxState: s.OutboxState.Clone()}
}

type publish struct {
	topic, key string
}

type fakePublisher struct {
	sent   []publish
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, _ []byte) error {
	if topic == p.failOn {
		return errors.New("broker unavailable")
	}

	p.sent = append(p.sent, publish{topic: topic, key: key})
	return nil
}

type OutboxWorkerSuite struct {
	suite.Suite

	db        *testsuite.MemDB[*state]
	repo      testsuite.MemOutbox[*state]
	publisher *fakePublisher
	processor *worker.OutboxProcessor
}

func (s *OutboxWorkerSuite) SetupTest() {
	s.db = testsuite.NewMemDB(&state{}, cloneState)
	s.publisher = &fakePublisher{}
	s.processor = worker.NewOutboxProcessor(s.db, s.repo, s.publisher, zap.NewNop(), 10, 0)
}

func (s *OutboxWorkerSuite) record(orderID, topic string) {
	event, err := domain.NewOutboxEvent("order", orderID, topic, map[string]string{"orderID": orderID})
	s.Require().NoError(err)

	tx, err := s.db.Begin(context.Background())
	s.Require().NoError(err)
	s.Require().NoError(s.repo.SaveOutboxEvent(context.Background(), tx, event))
	s.Require().NoError(tx.Commit(context.Background()))
}

func (s *OutboxWorkerSuite) TestProcessBatch_PublishesInOrder() {
	s.record("o1", events.TopicStockAvailable)
	s.record("o2", events.TopicStockUnavailable)

	n, err := s.processor.ProcessBatch(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(2, n)
	s.Require().Equal([]publish{
		{topic: events.TopicStockAvailable, key: "o1"},
		{topic: events.TopicStockUnavailable, key: "o2"},
	}, s.publisher.sent)

	n, err = s.processor.ProcessBatch(context.Background())
	s.Require().NoError(err)
	s.Require().Zero(n)
}

func (s *OutboxWorkerSuite) TestProcessBatch_StopsAtFirstFailure() {
	s.record("o1", events.TopicStockAvailable)
	s.record("o1", events.TopicReservationExpired)
	s.record("o1", events.TopicStockUnavailable)
	s.publisher.failOn = events.TopicReservationExpired

	n, err := s.processor.ProcessBatch(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(1, n)

	s.db.Read(func(st *state) {
		s.Require().NotNil(st.Events[0].PublishedAt)
		s.Require().Nil(st.Events[1].PublishedAt)
		s.Require().Equal(int64(1), st.Events[1].Attempts)
		s.Require().NotNil(st.Events[1].LastError)
		s.Require().Nil(st.Events[2].PublishedAt)
	})

	s.publisher.failOn = ""
	n, err = s.processor.ProcessBatch(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(2, n)
}

func TestOutboxWorkerSuite(t *testing.T) {
	suite.Run(t, new(OutboxWorkerSuite))
}
