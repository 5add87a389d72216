package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin/internal/platform/sqlite"
	"checkin/internal/settings/models"
	"checkin/pkg/platform/sentinel"
)

type Store struct {
	db     *sql.DB
	writer *sqlite.Worker
}

func New(db *sql.DB, writer *sqlite.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Get(ctx context.Context) (*models.SystemSettings, error) {
	var (
		open      int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT registration_open, updated_at_ms FROM system_settings WHERE id = ?;
`, models.SettingsID).Scan(&open, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &models.SystemSettings{
		ID:               models.SettingsID,
		RegistrationOpen: open == 1,
		UpdatedAt:        sqlite.FromUnixMillis(updatedAt),
	}, nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, settings *models.SystemSettings) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO system_settings (id, registration_open, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`, models.SettingsID, boolInt(settings.RegistrationOpen), sqlite.UnixMillis(settings.UpdatedAt)); err != nil {
			return fmt.Errorf("create settings: %w", err)
		}
		return nil
	})
}

func (s *Store) Save(ctx context.Context, settings *models.SystemSettings) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO system_settings (id, registration_open, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  registration_open = excluded.registration_open,
  updated_at_ms = excluded.updated_at_ms;
`, models.SettingsID, boolInt(settings.RegistrationOpen), sqlite.UnixMillis(settings.UpdatedAt)); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
