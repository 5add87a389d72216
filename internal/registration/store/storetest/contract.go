// Package storetest holds the behaviour every registration store must share.
// Store packages run ContractSuite against their own implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"checkin/internal/registration/models"
	"checkin/internal/registration/service"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

// Store is the registration store plus its sequence counter.
type Store interface {
	service.Store
	NextSequence(ctx context.Context, tag string) (int64, error)
	HighWaterMark(ctx context.Context, tag string) (int64, error)
	RaiseSequence(ctx context.Context, tag string, floor int64) error
}

// ContractSuite is embedded by store test suites. NewStore must return an
// empty store for every test.
type ContractSuite struct {
	suite.Suite
	NewStore func() Store

	store Store
	ctx   context.Context
	base  time.Time
}

func (s *ContractSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
}

func (s *ContractSuite) newRegistration(seq int, mobile string, createdAt time.Time) *models.Registration {
	code := id.FormatRegistrationCode("IFTAR", "2026", int64(seq))
	reg, err := models.NewRegistration(id.NewRegistrationID(), code, &models.RegisterRequest{
		Name:       fmt.Sprintf("Attendee %d", seq),
		Mobile:     mobile,
		Department: "Computer Science",
		Year:       "2nd Year",
	}, createdAt)
	s.Require().NoError(err)
	return reg
}

func (s *ContractSuite) create(seq int, mobile string, createdAt time.Time) *models.Registration {
	reg := s.newRegistration(seq, mobile, createdAt)
	s.Require().NoError(s.store.Create(s.ctx, reg))
	return reg
}

func (s *ContractSuite) TestCreateAndFind() {
	s.Run("round trips every field", func() {
		reg := s.create(1, "9123456789", s.base)

		found, err := s.store.FindByCode(s.ctx, reg.Code)
		s.Require().NoError(err)
		s.Equal(reg.ID, found.ID)
		s.Equal(reg.Code, found.Code)
		s.Equal("Attendee 1", found.Name)
		s.Equal("9123456789", found.Mobile)
		s.Equal("Computer Science", found.Department)
		s.Equal("2nd Year", found.Year)
		s.False(found.Admitted)
		s.Nil(found.AdmittedAt)
		s.True(reg.CreatedAt.Equal(found.CreatedAt))
	})

	s.Run("rejects a taken code", func() {
		dup := s.newRegistration(1, "9000000000", s.base)
		err := s.store.Create(s.ctx, dup)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown code is not found", func() {
		_, err := s.store.FindByCode(s.ctx, "IFTAR-2026-9999")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ContractSuite) TestFindEarliestByMobile() {
	first := s.create(1, "9999999999", s.base)
	s.create(2, "9999999999", s.base.Add(24*time.Hour))
	s.create(3, "8888888888", s.base)

	s.Run("unbounded returns the earliest", func() {
		found, err := s.store.FindEarliestByMobile(s.ctx, "9999999999", time.Time{}, time.Time{})
		s.Require().NoError(err)
		s.Equal(first.Code, found.Code)
	})

	s.Run("window bounds are inclusive", func() {
		from := s.base.Add(24 * time.Hour)
		found, err := s.store.FindEarliestByMobile(s.ctx, "9999999999", from, from)
		s.Require().NoError(err)
		s.Equal(id.RegistrationCode("IFTAR-2026-0002"), found.Code)
	})

	s.Run("empty window is not found", func() {
		from := s.base.Add(2 * time.Hour)
		_, err := s.store.FindEarliestByMobile(s.ctx, "9999999999", from, from.Add(time.Hour))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown mobile is not found", func() {
		_, err := s.store.FindEarliestByMobile(s.ctx, "7777777777", time.Time{}, time.Time{})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ContractSuite) TestAdmit() {
	reg := s.create(1, "9123456789", s.base)
	admitAt := s.base.Add(time.Hour)

	s.Run("first admission succeeds", func() {
		admitted, err := s.store.Admit(s.ctx, reg.Code, admitAt)
		s.Require().NoError(err)
		s.True(admitted.Admitted)
		s.Require().NotNil(admitted.AdmittedAt)
		s.True(admitAt.Equal(*admitted.AdmittedAt))
	})

	s.Run("second admission reports the stored record", func() {
		_, err := s.store.Admit(s.ctx, reg.Code, admitAt.Add(time.Minute))
		var already *models.AlreadyAdmittedError
		s.Require().True(errors.As(err, &already), "got %v", err)
		s.Require().NotNil(already.Registration.AdmittedAt)
		s.True(admitAt.Equal(*already.Registration.AdmittedAt), "admitted_at must not move")
	})

	s.Run("unknown code is not found", func() {
		_, err := s.store.Admit(s.ctx, "IFTAR-2026-0404", admitAt)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestConcurrentAdmit fires simultaneous admits at one pending code.
// Exactly one must win.
func (s *ContractSuite) TestConcurrentAdmit() {
	reg := s.create(1, "9123456789", s.base)
	const goroutines = 20

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		success  atomic.Int32
		already  atomic.Int32
		mu       sync.Mutex
		winnerAt time.Time
	)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			at := s.base.Add(time.Duration(i+1) * time.Second)
			admitted, err := s.store.Admit(s.ctx, reg.Code, at)
			var aa *models.AlreadyAdmittedError
			switch {
			case err == nil:
				success.Add(1)
				mu.Lock()
				winnerAt = *admitted.AdmittedAt
				mu.Unlock()
			case errors.As(err, &aa):
				already.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), success.Load(), "exactly one admit should succeed")
	s.Equal(int32(goroutines-1), already.Load(), "all others should observe already admitted")

	stored, err := s.store.FindByCode(s.ctx, reg.Code)
	s.Require().NoError(err)
	s.True(stored.Admitted)
	s.Require().NotNil(stored.AdmittedAt)
	s.True(winnerAt.Equal(*stored.AdmittedAt))
}

func (s *ContractSuite) TestListAndStats() {
	s.create(1, "9000000001", s.base)
	s.create(2, "9000000002", s.base.Add(time.Minute))
	s.create(3, "9000000003", s.base.Add(24*time.Hour))
	_, err := s.store.Admit(s.ctx, "IFTAR-2026-0002", s.base.Add(time.Hour))
	s.Require().NoError(err)

	s.Run("lists newest first", func() {
		all, err := s.store.List(s.ctx, models.ListFilter{})
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Equal(id.RegistrationCode("IFTAR-2026-0003"), all[0].Code)
		s.Equal(id.RegistrationCode("IFTAR-2026-0001"), all[2].Code)
	})

	s.Run("filters by day", func() {
		day, err := s.store.List(s.ctx, models.ListFilter{
			From: s.base.Add(-time.Hour),
			To:   s.base.Add(time.Hour),
		})
		s.Require().NoError(err)
		s.Len(day, 2)
	})

	s.Run("counts admitted and pending", func() {
		st, err := s.store.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(models.Stats{Total: 3, Admitted: 1, Pending: 2}, st)
	})
}

func (s *ContractSuite) TestDelete() {
	s.create(1, "9000000001", s.base)
	s.create(2, "9000000002", s.base)
	s.create(3, "9000000003", s.base)

	s.Run("deletes one", func() {
		s.Require().NoError(s.store.Delete(s.ctx, "IFTAR-2026-0001"))
		_, err := s.store.FindByCode(s.ctx, "IFTAR-2026-0001")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("deleting an unknown code is not found", func() {
		s.ErrorIs(s.store.Delete(s.ctx, "IFTAR-2026-0001"), sentinel.ErrNotFound)
	})

	s.Run("bulk delete reports what existed", func() {
		deleted, err := s.store.DeleteMany(s.ctx, []id.RegistrationCode{"IFTAR-2026-0002", "IFTAR-2026-0404", "IFTAR-2026-0003"})
		s.Require().NoError(err)
		s.ElementsMatch([]id.RegistrationCode{"IFTAR-2026-0002", "IFTAR-2026-0003"}, deleted)

		st, err := s.store.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, st.Total)
	})
}

func (s *ContractSuite) TestSequences() {
	s.Run("increments per tag", func() {
		n, err := s.store.NextSequence(s.ctx, "IFTAR-2026")
		s.Require().NoError(err)
		s.Equal(int64(1), n)
		n, err = s.store.NextSequence(s.ctx, "IFTAR-2026")
		s.Require().NoError(err)
		s.Equal(int64(2), n)
		n, err = s.store.NextSequence(s.ctx, "IFTAR-2027")
		s.Require().NoError(err)
		s.Equal(int64(1), n)
	})

	s.Run("concurrent increments are unique", func() {
		const goroutines = 50
		values := make([]int64, goroutines)
		var g errgroup.Group
		for i := range goroutines {
			g.Go(func() error {
				n, err := s.store.NextSequence(s.ctx, "GALA-2026")
				values[i] = n
				return err
			})
		}
		s.Require().NoError(g.Wait())

		seen := make(map[int64]struct{}, goroutines)
		for _, v := range values {
			seen[v] = struct{}{}
		}
		s.Len(seen, goroutines)
	})

	s.Run("deleting a registration does not rewind the counter", func() {
		reg := s.create(3, "9000000003", s.base)
		s.Require().NoError(s.store.Delete(s.ctx, reg.Code))
		n, err := s.store.NextSequence(s.ctx, "IFTAR-2026")
		s.Require().NoError(err)
		s.Equal(int64(3), n)
	})

	s.Run("high-water mark covers stored codes beyond the counter", func() {
		s.create(10000, "9000000004", s.base)
		mark, err := s.store.HighWaterMark(s.ctx, "IFTAR-2026")
		s.Require().NoError(err)
		s.Equal(int64(10000), mark)

		mark, err = s.store.HighWaterMark(s.ctx, "GALA-2026")
		s.Require().NoError(err)
		s.Equal(int64(50), mark)

		mark, err = s.store.HighWaterMark(s.ctx, "NONE-2026")
		s.Require().NoError(err)
		s.Equal(int64(0), mark)
	})
	s.Run("raising only moves the counter forward", func() {
		s.Require().NoError(s.store.RaiseSequence(s.ctx, "FEST-2026", 7))
		s.Require().NoError(s.store.RaiseSequence(s.ctx, "FEST-2026", 3))

		mark, err := s.store.HighWaterMark(s.ctx, "FEST-2026")
		s.Require().NoError(err)
		s.Equal(int64(7), mark)

		n, err := s.store.NextSequence(s.ctx, "FEST-2026")
		s.Require().NoError(err)
		s.Equal(int64(8), n)
	})
}
