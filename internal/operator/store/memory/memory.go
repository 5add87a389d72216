package memory

import (
	"context"
	"sync"

	"checkin/internal/operator/models"
	"checkin/pkg/platform/sentinel"
)

type InMemory struct {
	mu         sync.RWMutex
	byUsername map[string]*models.Operator
}

func New() *InMemory {
	return &InMemory{byUsername: make(map[string]*models.Operator)}
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.byUsername[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *op
	return &c, nil
}

func (s *InMemory) Upsert(_ context.Context, op *models.Operator) (*models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byUsername[op.Username]; ok {
		existing.PasswordHash = op.PasswordHash
		c := *existing
		return &c, nil
	}
	c := *op
	s.byUsername[op.Username] = &c
	out := c
	return &out, nil
}
