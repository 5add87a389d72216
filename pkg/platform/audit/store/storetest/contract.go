// Package storetest holds the behaviour every audit store must share.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	audit "checkin/pkg/platform/audit"
)

// ContractSuite is embedded by store test suites. NewStore must return an
// empty store for every test.
type ContractSuite struct {
	suite.Suite
	NewStore func() audit.Store

	store audit.Store
	ctx   context.Context
}

func (s *ContractSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func event(subject string, action audit.AuditEvent, at time.Time) audit.Event {
	return audit.Event{
		Category:  action.Category(),
		Timestamp: at,
		Subject:   subject,
		Action:    string(action),
	}
}

func (s *ContractSuite) TestTrail() {
	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	admitted := event("IFTAR-2026-0001", audit.EventAdmissionGranted, t0.Add(time.Minute))
	admitted.ActorID = "5f0c7a52-3f0e-4f5e-9c1a-0d6b1a2b3c4d"
	admitted.Actor = "gate-1"
	admitted.ClientIP = "10.0.0.7"
	admitted.Device = "Android / Chrome"
	admitted.RequestID = "req-42"

	s.Require().NoError(s.store.Append(s.ctx, event("IFTAR-2026-0001", audit.EventRegistrationCreated, t0)))
	s.Require().NoError(s.store.Append(s.ctx, event("IFTAR-2026-0002", audit.EventRegistrationCreated, t0)))
	s.Require().NoError(s.store.Append(s.ctx, admitted))
	repeat := event("IFTAR-2026-0001", audit.EventAdmissionRepeated, t0.Add(time.Minute))
	repeat.Reason = "already_admitted"
	s.Require().NoError(s.store.Append(s.ctx, repeat))

	s.Run("lists a subject in append order", func() {
		events, err := s.store.ListBySubject(s.ctx, "IFTAR-2026-0001")
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		s.Equal(string(audit.EventRegistrationCreated), events[0].Action)
		s.Equal(string(audit.EventAdmissionGranted), events[1].Action)
		s.Equal(string(audit.EventAdmissionRepeated), events[2].Action)
	})

	s.Run("keeps every field", func() {
		events, err := s.store.ListBySubject(s.ctx, "IFTAR-2026-0001")
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		got := events[1]
		s.Equal(audit.CategoryRecord, got.Category)
		s.True(admitted.Timestamp.Equal(got.Timestamp))
		s.Equal(admitted.ActorID, got.ActorID)
		s.Equal(admitted.Actor, got.Actor)
		s.Equal(admitted.ClientIP, got.ClientIP)
		s.Equal(admitted.Device, got.Device)
		s.Equal(admitted.RequestID, got.RequestID)
		s.Equal("already_admitted", events[2].Reason)
		s.Equal(audit.CategorySecurity, events[2].Category)
	})

	s.Run("unknown subject is empty", func() {
		events, err := s.store.ListBySubject(s.ctx, "IFTAR-2026-9999")
		s.Require().NoError(err)
		s.Empty(events)
	})
}
