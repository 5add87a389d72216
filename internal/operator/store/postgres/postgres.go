package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"checkin/internal/operator/models"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func scanOperator(row interface{ Scan(...any) error }) (*models.Operator, error) {
	var (
		rawID uuid.UUID
		op    models.Operator
	)
	if err := row.Scan(&rawID, &op.Username, &op.PasswordHash, &op.CreatedAt); err != nil {
		return nil, err
	}
	op.ID = id.OperatorID(rawID)
	op.CreatedAt = op.CreatedAt.UTC()
	return &op, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*models.Operator, error) {
	op, err := scanOperator(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at FROM operators WHERE username = $1
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
	stored, err := scanOperator(s.db.QueryRowContext(ctx, `
		INSERT INTO operators (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING id, username, password_hash, created_at
	`, uuid.UUID(op.ID), op.Username, op.PasswordHash, op.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert operator: %w", err)
	}
	return stored, nil
}
