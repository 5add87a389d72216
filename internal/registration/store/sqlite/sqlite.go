// Package sqlite persists registrations in the single-file SQLite database.
// Every write goes through the shared Worker so admission and allocation are
// serialized without relying on SQLite's busy handler.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkin/internal/platform/sqlite"
	"checkin/internal/registration/models"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/sentinel"
)

const columns = `id, registration_id, name, mobile, department, year, admitted, admitted_at_ms, created_at_ms`

type Store struct {
	db     *sql.DB
	writer *sqlite.Worker
}

func New(db *sql.DB, writer *sqlite.Worker) *Store {
	return &Store{db: db, writer: writer}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		rawID      string
		code       string
		reg        models.Registration
		admitted   int64
		admittedAt sql.NullInt64
		createdAt  int64
	)
	if err := row.Scan(&rawID, &code, &reg.Name, &reg.Mobile, &reg.Department, &reg.Year, &admitted, &admittedAt, &createdAt); err != nil {
		return nil, err
	}
	regID, err := id.ParseRegistrationID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored registration id %q: %w", rawID, err)
	}
	reg.ID = regID
	reg.Code = id.RegistrationCode(code)
	reg.Admitted = admitted == 1
	if admittedAt.Valid {
		at := sqlite.FromUnixMillis(admittedAt.Int64)
		reg.AdmittedAt = &at
	}
	reg.CreatedAt = sqlite.FromUnixMillis(createdAt)
	return &reg, nil
}

func (s *Store) Create(ctx context.Context, reg *models.Registration) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var admittedAt any
		if reg.AdmittedAt != nil {
			admittedAt = sqlite.UnixMillis(*reg.AdmittedAt)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO registrations (`+columns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, reg.ID.String(), string(reg.Code), reg.Name, reg.Mobile, reg.Department, reg.Year,
			boolInt(reg.Admitted), admittedAt, sqlite.UnixMillis(reg.CreatedAt))
		if err != nil {
			if sqlite.IsUniqueViolation(err, "registrations.registration_id") {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

func (s *Store) FindByCode(ctx context.Context, code id.RegistrationCode) (*models.Registration, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM registrations WHERE registration_id = ?;`, string(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by code: %w", err)
	}
	return reg, nil
}

func (s *Store) FindEarliestByMobile(ctx context.Context, mobile string, from, to time.Time) (*models.Registration, error) {
	where, args := window(from, to)
	args = append([]any{mobile}, args...)
	reg, err := scanRegistration(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM registrations WHERE mobile = ?`+where+` ORDER BY created_at_ms ASC, registration_id ASC LIMIT 1;`,
		args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by mobile: %w", err)
	}
	return reg, nil
}

// Admit flips admitted with a conditional UPDATE. When no row changes, the
// row is re-read to tell an unknown code from an earlier admission.
func (s *Store) Admit(ctx context.Context, code id.RegistrationCode, now time.Time) (*models.Registration, error) {
	var out *models.Registration
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE registrations
SET admitted = 1, admitted_at_ms = ?
WHERE registration_id = ? AND admitted = 0;
`, sqlite.UnixMillis(now), string(code))
		if err != nil {
			return fmt.Errorf("admit registration: %w", err)
		}
		changed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("admit registration rows affected: %w", err)
		}

		reg, err := scanRegistration(tx.QueryRowContext(ctx,
			`SELECT `+columns+` FROM registrations WHERE registration_id = ?;`, string(code)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("reload registration: %w", err)
		}
		if changed == 0 {
			return &models.AlreadyAdmittedError{Registration: reg}
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error) {
	where, args := window(filter.From, filter.To)
	if where != "" {
		where = " WHERE" + strings.TrimPrefix(where, " AND")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM registrations`+where+` ORDER BY created_at_ms DESC, registration_id DESC;`,
		args...)
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
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE registration_id = ?;`, string(code))
		if err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sentinel.ErrNotFound
		}
		return nil
	})
}

func (s *Store) DeleteMany(ctx context.Context, codes []id.RegistrationCode) ([]id.RegistrationCode, error) {
	var deleted []id.RegistrationCode
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		deleted = deleted[:0]
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM registrations WHERE registration_id = ?;`)
		if err != nil {
			return fmt.Errorf("prepare bulk delete: %w", err)
		}
		defer stmt.Close()
		for _, code := range codes {
			res, err := stmt.ExecContext(ctx, string(code))
			if err != nil {
				return fmt.Errorf("bulk delete %s: %w", code, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				deleted = append(deleted, code)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(admitted), 0) FROM registrations;
`).Scan(&st.Total, &st.Admitted)
	if err != nil {
		return models.Stats{}, fmt.Errorf("registration stats: %w", err)
	}
	st.Pending = st.Total - st.Admitted
	return st, nil
}

// NextSequence increments the counter row for tag, creating it at 1.
func (s *Store) NextSequence(ctx context.Context, tag string) (int64, error) {
	var next int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
INSERT INTO registration_sequences (tag, value) VALUES (?, 1)
ON CONFLICT(tag) DO UPDATE SET value = value + 1
RETURNING value;
`, tag).Scan(&next)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		return nil
	})
	return next, err
}

// RaiseSequence lifts the counter row for tag to at least floor.
func (s *Store) RaiseSequence(ctx context.Context, tag string, floor int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO registration_sequences (tag, value) VALUES (?, ?)
ON CONFLICT(tag) DO UPDATE SET value = MAX(value, excluded.value);
`, tag, floor)
		if err != nil {
			return fmt.Errorf("raise sequence: %w", err)
		}
		return nil
	})
}

// HighWaterMark is the larger of the counter and the highest stored sequence
// for tag. Zero padding makes (length, code) order match numeric order.
func (s *Store) HighWaterMark(ctx context.Context, tag string) (int64, error) {
	var counter int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM registration_sequences WHERE tag = ?;`, tag).Scan(&counter)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read sequence: %w", err)
	}

	var code string
	err = s.db.QueryRowContext(ctx, `
SELECT registration_id FROM registrations
WHERE registration_id LIKE ?
ORDER BY length(registration_id) DESC, registration_id DESC
LIMIT 1;
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

func window(from, to time.Time) (string, []any) {
	var (
		where strings.Builder
		args  []any
	)
	if !from.IsZero() {
		where.WriteString(" AND created_at_ms >= ?")
		args = append(args, sqlite.UnixMillis(from))
	}
	if !to.IsZero() {
		where.WriteString(" AND created_at_ms <= ?")
		args = append(args, sqlite.UnixMillis(to))
	}
	return where.String(), args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
