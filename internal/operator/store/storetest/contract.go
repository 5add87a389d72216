// Package storetest holds the behaviour every operator store must share.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"checkin/internal/operator/models"
	"checkin/internal/operator/service"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

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

func (s *ContractSuite) TestUpsert() {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := &models.Operator{ID: id.NewOperatorID(), Username: "gate-1", PasswordHash: "hash-1", CreatedAt: created}

	s.Run("unknown username is not found", func() {
		_, err := s.store.FindByUsername(s.ctx, "gate-1")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("inserts a new operator", func() {
		stored, err := s.store.Upsert(s.ctx, first)
		s.Require().NoError(err)
		s.Equal(first.ID, stored.ID)

		found, err := s.store.FindByUsername(s.ctx, "gate-1")
		s.Require().NoError(err)
		s.Equal(first.ID, found.ID)
		s.Equal("hash-1", found.PasswordHash)
		s.True(created.Equal(found.CreatedAt))
	})

	s.Run("existing username keeps its id and gets the new hash", func() {
		stored, err := s.store.Upsert(s.ctx, &models.Operator{
			ID: id.NewOperatorID(), Username: "gate-1", PasswordHash: "hash-2", CreatedAt: created.Add(time.Hour),
		})
		s.Require().NoError(err)
		s.Equal(first.ID, stored.ID)
		s.Equal("hash-2", stored.PasswordHash)
	})
}
