// Package storetest holds the behaviour every settings store must share.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"checkin/internal/settings/models"
	"checkin/internal/settings/service"
	"checkin/pkg/platform/sentinel"
)

// ContractSuite is embedded by store test suites. NewStore must return an
// empty store for every test.
type ContractSuite struct {
	suite.Suite
	NewStore func() service.Store

	store service.Store
	ctx   context.Context
}

func (s *ContractSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *ContractSuite) TestSettingsRow() {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Run("missing row is not found", func() {
		_, err := s.store.Get(s.ctx)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("create if absent inserts once", func() {
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, models.Defaults(t0)))
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, &models.SystemSettings{
			ID: models.SettingsID, RegistrationOpen: false, UpdatedAt: t0.Add(time.Hour),
		}))

		got, err := s.store.Get(s.ctx)
		s.Require().NoError(err)
		s.True(got.RegistrationOpen)
		s.True(t0.Equal(got.UpdatedAt))
	})

	s.Run("save overwrites", func() {
		t1 := t0.Add(2 * time.Hour)
		s.Require().NoError(s.store.Save(s.ctx, &models.SystemSettings{
			ID: models.SettingsID, RegistrationOpen: false, UpdatedAt: t1,
		}))

		got, err := s.store.Get(s.ctx)
		s.Require().NoError(err)
		s.False(got.RegistrationOpen)
		s.True(t1.Equal(got.UpdatedAt))
	})
}
