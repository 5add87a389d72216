package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/audit/store/memory"
	"checkin/pkg/requestcontext"
)

// gatedStore blocks Append until release is closed, so a test can hold the
// worker and fill the queue deterministically.
type gatedStore struct {
	*memory.InMemoryStore
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{InMemoryStore: memory.NewInMemoryStore(), release: make(chan struct{})}
}

func (g *gatedStore) Append(ctx context.Context, e audit.Event) error {
	<-g.release
	return g.InMemoryStore.Append(ctx, e)
}

func (g *gatedStore) open() { g.once.Do(func() { close(g.release) }) }

type PublisherSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *PublisherSuite) TestSyncEmit() {
	pub := NewPublisher(memory.NewInMemoryStore())
	defer pub.Close()

	s.Require().NoError(pub.Emit(s.ctx, audit.Event{Subject: "IFTAR-2026-0001", Action: string(audit.EventRegistrationCreated)}))
	s.Require().NoError(pub.Emit(s.ctx, audit.Event{Subject: "IFTAR-2026-0001", Action: string(audit.EventAdmissionGranted)}))
	s.Require().NoError(pub.Emit(s.ctx, audit.Event{Subject: "IFTAR-2026-0002", Action: string(audit.EventRegistrationCreated)}))

	events, err := pub.List(s.ctx, "IFTAR-2026-0001")
	s.Require().NoError(err)
	s.Require().Len(events, 2)

	s.Run("keeps emission order per subject", func() {
		s.Equal(string(audit.EventRegistrationCreated), events[0].Action)
		s.Equal(string(audit.EventAdmissionGranted), events[1].Action)
	})
	s.Run("stamps the request time", func() {
		s.True(s.now.Equal(events[0].Timestamp))
	})
	s.Run("derives the category from the action", func() {
		s.Equal(audit.CategoryRecord, events[0].Category)
	})
}

func (s *PublisherSuite) TestExplicitFieldsArePreserved() {
	pub := NewPublisher(memory.NewInMemoryStore())
	at := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)

	s.Require().NoError(pub.Emit(s.ctx, audit.Event{
		Subject:   "IFTAR-2026-0001",
		Action:    string(audit.EventAdmissionRepeated),
		Category:  audit.CategoryOperations,
		Timestamp: at,
	}))

	events, err := pub.List(s.ctx, "IFTAR-2026-0001")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.True(at.Equal(events[0].Timestamp))
	s.Equal(audit.CategoryOperations, events[0].Category)
}

func (s *PublisherSuite) TestAsyncDrainsOnClose() {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(64))

	for range 20 {
		s.Require().NoError(pub.Emit(s.ctx, audit.Event{Subject: "IFTAR-2026-0007", Action: string(audit.EventAdmissionRepeated)}))
	}
	pub.Close()

	events, err := store.ListBySubject(s.ctx, "IFTAR-2026-0007")
	s.Require().NoError(err)
	s.Len(events, 20)
}

func (s *PublisherSuite) TestAsyncFullBufferDrops() {
	store := newGatedStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer func() {
		store.open()
		pub.Close()
	}()

	event := audit.Event{Subject: "IFTAR-2026-0003", Action: string(audit.EventRegistrationCreated)}
	// The worker may already hold the first event, so the queue fills within
	// three emits.
	var err error
	for range 3 {
		if err = pub.Emit(s.ctx, event); err != nil {
			break
		}
	}
	s.ErrorIs(err, ErrBufferFull)
}

func (s *PublisherSuite) TestAsyncRejectsCancelledContext() {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	defer pub.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := pub.Emit(ctx, audit.Event{Subject: "IFTAR-2026-0001"})
	s.True(errors.Is(err, context.Canceled))
}

func (s *PublisherSuite) TestEmitAfterClose() {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	pub.Close()
	pub.Close()

	s.ErrorIs(pub.Emit(s.ctx, audit.Event{Subject: "IFTAR-2026-0001"}), ErrClosed)
}
