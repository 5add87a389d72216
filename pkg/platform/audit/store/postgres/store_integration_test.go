//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/audit/store/postgres"
	"checkin/pkg/platform/audit/store/storetest"
	"checkin/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storetest.ContractSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.NewStore = func() audit.Store {
		s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
		return postgres.New(s.postgres.DB)
	}
}
