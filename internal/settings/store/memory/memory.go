package memory

import (
	"context"
	"sync"

	"checkin/internal/settings/models"
	"checkin/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	settings *models.SystemSettings
}

func New() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Get(_ context.Context) (*models.SystemSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil, sentinel.ErrNotFound
	}
	c := *s.settings
	return &c, nil
}

func (s *InMemory) CreateIfAbsent(_ context.Context, settings *models.SystemSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		c := *settings
		s.settings = &c
	}
	return nil
}

func (s *InMemory) Save(_ context.Context, settings *models.SystemSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *settings
	s.settings = &c
	return nil
}
