package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"checkin/internal/platform/sqlite"
	audit "checkin/pkg/platform/audit"
)

// Store implements audit.Store on the SQLite audit_events table. Inserts go
// through the shared writer.
type Store struct {
	db     *sql.DB
	writer *sqlite.Worker
}

func New(db *sql.DB, writer *sqlite.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO audit_events (
  id, category, occurred_at_ms, subject, action,
  reason, actor_id, actor, client_ip, device, request_id
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			uuid.NewString(),
			string(audit.AuditEvent(event.Action).Category()),
			sqlite.UnixMillis(event.Timestamp),
			event.Subject,
			event.Action,
			event.Reason,
			event.ActorID,
			event.Actor,
			event.ClientIP,
			event.Device,
			event.RequestID,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		return nil
	})
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT category, occurred_at_ms, subject, action,
       reason, actor_id, actor, client_ip, device, request_id
FROM audit_events
WHERE subject = ?
ORDER BY seq;
`, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		var (
			category   string
			occurredAt int64
			event      audit.Event
		)
		if err := rows.Scan(&category, &occurredAt, &event.Subject, &event.Action,
			&event.Reason, &event.ActorID, &event.Actor, &event.ClientIP, &event.Device, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Timestamp = sqlite.FromUnixMillis(occurredAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
