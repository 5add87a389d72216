package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin/internal/operator/models"
	"checkin/internal/platform/sqlite"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

type Store struct {
	db     *sql.DB
	writer *sqlite.Worker
}

func New(db *sql.DB, writer *sqlite.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func scanOperator(row interface{ Scan(...any) error }) (*models.Operator, error) {
	var (
		rawID     string
		op        models.Operator
		createdAt int64
	)
	if err := row.Scan(&rawID, &op.Username, &op.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	opID, err := id.ParseOperatorID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored operator id %q: %w", rawID, err)
	}
	op.ID = opID
	op.CreatedAt = sqlite.FromUnixMillis(createdAt)
	return &op, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*models.Operator, error) {
	op, err := scanOperator(s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, created_at_ms FROM operators WHERE username = ?;
`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find operator: %w", err)
	}
	return op, nil
}

func (s *Store) Upsert(ctx context.Context, op *models.Operator) (*models.Operator, error) {
	var out *models.Operator
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stored, err := scanOperator(tx.QueryRowContext(ctx, `
INSERT INTO operators (id, username, password_hash, created_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash
RETURNING id, username, password_hash, created_at_ms;
`, op.ID.String(), op.Username, op.PasswordHash, sqlite.UnixMillis(op.CreatedAt)))
		if err != nil {
			return fmt.Errorf("upsert operator: %w", err)
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
