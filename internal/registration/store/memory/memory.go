package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"checkin/internal/registration/models"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

// InMemory keeps registrations and sequence counters behind one mutex, which
// makes admission and allocation trivially linearizable.
type InMemory struct {
	mu        sync.RWMutex
	byCode    map[id.RegistrationCode]*models.Registration
	sequences map[string]int64
}

func New() *InMemory {
	return &InMemory{
		byCode:    make(map[id.RegistrationCode]*models.Registration),
		sequences: make(map[string]int64),
	}
}

func (s *InMemory) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[reg.Code]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.byCode[reg.Code] = reg.Clone()
	return nil
}

func (s *InMemory) FindByCode(_ context.Context, code id.RegistrationCode) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return reg.Clone(), nil
}

func (s *InMemory) FindEarliestByMobile(_ context.Context, mobile string, from, to time.Time) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := models.ListFilter{From: from, To: to}
	var best *models.Registration
	for _, reg := range s.byCode {
		if reg.Mobile != mobile || !window.Matches(reg.CreatedAt) {
			continue
		}
		if best == nil || reg.CreatedAt.Before(best.CreatedAt) {
			best = reg
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return best.Clone(), nil
}

// Admit flips a pending registration to admitted. An admitted one yields
// *models.AlreadyAdmittedError with the stored record.
func (s *InMemory) Admit(_ context.Context, code id.RegistrationCode, now time.Time) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := reg.Admit(now); err != nil {
		return nil, err
	}
	return reg.Clone(), nil
}

func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Registration, error) {
	s.mu.RLock()
	out := make([]*models.Registration, 0, len(s.byCode))
	for _, reg := range s.byCode {
		if filter.Matches(reg.CreatedAt) {
			out = append(out, reg.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code > out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, code id.RegistrationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[code]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byCode, code)
	return nil
}

// DeleteMany removes the listed codes and returns those that existed.
func (s *InMemory) DeleteMany(_ context.Context, codes []id.RegistrationCode) ([]id.RegistrationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []id.RegistrationCode
	for _, code := range codes {
		if _, ok := s.byCode[code]; ok {
			delete(s.byCode, code)
			deleted = append(deleted, code)
		}
	}
	return deleted, nil
}

func (s *InMemory) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.Stats
	for _, reg := range s.byCode {
		st.Total++
		if reg.Admitted {
			st.Admitted++
		}
	}
	st.Pending = st.Total - st.Admitted
	return st, nil
}

// NextSequence increments and returns the counter for tag.
func (s *InMemory) NextSequence(_ context.Context, tag string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[tag]++
	return s.sequences[tag], nil
}

// RaiseSequence lifts the counter for tag to at least floor.
func (s *InMemory) RaiseSequence(_ context.Context, tag string, floor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if floor > s.sequences[tag] {
		s.sequences[tag] = floor
	}
	return nil
}

// HighWaterMark is the larger of the counter and the highest stored sequence.
func (s *InMemory) HighWaterMark(_ context.Context, tag string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mark := s.sequences[tag]
	for code := range s.byCode {
		if !strings.HasPrefix(string(code), tag+"-") {
			continue
		}
		parts, err := id.ParseRegistrationCode(string(code))
		if err == nil && parts.Tag() == tag && parts.Sequence > mark {
			mark = parts.Sequence
		}
	}
	return mark, nil
}
