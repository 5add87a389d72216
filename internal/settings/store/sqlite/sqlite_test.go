package sqlite

import (
	"testing"

	"github.com/stretchr/testify/suite"

	platformsqlite "checkin/internal/platform/sqlite"
	"checkin/internal/settings/service"
	"checkin/internal/settings/store/storetest"
)

type SQLiteStoreSuite struct {
	storetest.ContractSuite
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := new(SQLiteStoreSuite)
	s.NewStore = func() service.Store {
		db, writer := platformsqlite.OpenTest(s.T())
		return New(db, writer)
	}
	suite.Run(t, s)
}
