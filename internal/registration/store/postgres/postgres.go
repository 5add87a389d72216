package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"checkin/internal/platform/postgres"
	"checkin/internal/registration/models"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

const (
	columns          = `id, registration_id, name, mobile, department, year, admitted, admitted_at, created_at`
	uniqueCodeConstr = "registrations_registration_id_key"
)

// Store persists registrations in PostgreSQL.
// Admission and sequence allocation are single atomic statements; the store
// holds no locks of its own.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		rawID      uuid.UUID
		code       string
		reg        models.Registration
		admittedAt sql.NullTime
	)
	if err := row.Scan(&rawID, &code, &reg.Name, &reg.Mobile, &reg.Department, &reg.Year,
		&reg.Admitted, &admittedAt, &reg.CreatedAt); err != nil {
		return nil, err
	}
	reg.ID = id.RegistrationID(rawID)
	reg.Code = id.RegistrationCode(code)
	if admittedAt.Valid {
		at := admittedAt.Time.UTC()
		reg.AdmittedAt = &at
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	return &reg, nil
}

func (s *Store) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(reg.ID),
		string(reg.Code),
		reg.Name,
		reg.Mobile,
		reg.Department,
		reg.Year,
		reg.Admitted,
		reg.AdmittedAt,
		reg.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, uniqueCodeConstr) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *Store) FindByCode(ctx context.Context, code id.RegistrationCode) (*models.Registration, error) {
	query := `SELECT ` + columns + ` FROM registrations WHERE registration_id = $1`
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, query, string(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by code: %w", err)
	}
	return reg, nil
}

func (s *Store) FindEarliestByMobile(ctx context.Context, mobile string, from, to time.Time) (*models.Registration, error) {
	where, args := window(from, to, 2)
	query := `SELECT ` + columns + ` FROM registrations WHERE mobile = $1` + where +
		` ORDER BY created_at ASC, registration_id ASC LIMIT 1`
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, query, append([]any{mobile}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by mobile: %w", err)
	}
	return reg, nil
}

// Admit is a conditional UPDATE ... RETURNING. Row locking makes concurrent
// callers re-check admitted after the winner commits, so only one matches.
func (s *Store) Admit(ctx context.Context, code id.RegistrationCode, now time.Time) (*models.Registration, error) {
	query := `
		UPDATE registrations
		SET admitted = TRUE, admitted_at = $2
		WHERE registration_id = $1 AND NOT admitted
		RETURNING ` + columns
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, query, string(code), now))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admit registration: %w", err)
	}

	existing, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return nil, &models.AlreadyAdmittedError{Registration: existing}
}

func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error) {
	where, args := window(filter.From, filter.To, 1)
	if where != "" {
		where = " WHERE" + strings.TrimPrefix(where, " AND")
	}
	query := `SELECT ` + columns + ` FROM registrations` + where + ` ORDER BY created_at DESC, registration_id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, code id.RegistrationCode) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE registration_id = $1`, string(code))
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, codes []id.RegistrationCode) ([]id.RegistrationCode, error) {
	raw := make([]string, len(codes))
	for i, c := range codes {
		raw[i] = string(c)
	}
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM registrations WHERE registration_id = ANY($1) RETURNING registration_id`,
		pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("bulk delete registrations: %w", err)
	}
	defer rows.Close()

	var deleted []id.RegistrationCode
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan deleted code: %w", err)
		}
		deleted = append(deleted, id.RegistrationCode(code))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted codes: %w", err)
	}
	return deleted, nil
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE admitted) FROM registrations
	`).Scan(&st.Total, &st.Admitted)
	if err != nil {
		return models.Stats{}, fmt.Errorf("registration stats: %w", err)
	}
	st.Pending = st.Total - st.Admitted
	return st, nil
}

// NextSequence atomically increments the counter row for tag.
func (s *Store) NextSequence(ctx context.Context, tag string) (int64, error) {
	query := `
		INSERT INTO registration_sequences (tag, value) VALUES ($1, 1)
		ON CONFLICT (tag) DO UPDATE SET value = registration_sequences.value + 1
		RETURNING value
	`
	var next int64
	if err := s.db.QueryRowContext(ctx, query, tag).Scan(&next); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return next, nil
}

// RaiseSequence lifts the counter row for tag to at least floor.
func (s *Store) RaiseSequence(ctx context.Context, tag string, floor int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registration_sequences (tag, value) VALUES ($1, $2)
		ON CONFLICT (tag) DO UPDATE SET value = GREATEST(registration_sequences.value, EXCLUDED.value)
	`, tag, floor)
	if err != nil {
		return fmt.Errorf("raise sequence: %w", err)
	}
	return nil
}

// HighWaterMark is the larger of the counter and the highest stored sequence
// for tag.
func (s *Store) HighWaterMark(ctx context.Context, tag string) (int64, error) {
	var counter int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM registration_sequences WHERE tag = $1`, tag).Scan(&counter)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read sequence: %w", err)
	}

	var code string
	err = s.db.QueryRowContext(ctx, `
		SELECT registration_id FROM registrations
		WHERE registration_id LIKE $1
		ORDER BY length(registration_id) DESC, registration_id DESC
		LIMIT 1
	`, tag+"-%").Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return counter, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read highest code: %w", err)
	}
	parts, err := id.ParseRegistrationCode(code)
	if err != nil || parts.Sequence <= counter {
		return counter, nil
	}
	return parts.Sequence, nil
}

// window renders inclusive created_at bounds starting at placeholder $n.
func window(from, to time.Time, n int) (string, []any) {
	var (
		where strings.Builder
		args  []any
	)
	if !from.IsZero() {
		fmt.Fprintf(&where, " AND created_at >= $%d", n)
		args = append(args, from)
		n++
	}
	if !to.IsZero() {
		fmt.Fprintf(&where, " AND created_at <= $%d", n)
		args = append(args, to)
	}
	return where.String(), args
}
