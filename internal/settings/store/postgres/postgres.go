package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin/internal/settings/models"
	"checkin/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context) (*models.SystemSettings, error) {
	settings := &models.SystemSettings{ID: models.SettingsID}
	err := s.db.QueryRowContext(ctx, `
		SELECT registration_open, updated_at FROM system_settings WHERE id = $1
	`, models.SettingsID).Scan(&settings.RegistrationOpen, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, settings *models.SystemSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (id, registration_open, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, models.SettingsID, settings.RegistrationOpen, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, settings *models.SystemSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (id, registration_open, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			registration_open = EXCLUDED.registration_open,
			updated_at = EXCLUDED.updated_at
	`, models.SettingsID, settings.RegistrationOpen, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
