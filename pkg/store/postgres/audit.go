package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
)

// AuditStore persists audit events.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates a new audit store.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Record inserts one audit event.
func (s *AuditStore) Record(ctx context.Context, event *domain.AuditEvent) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_events (id, occurred_at, kind, account_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.Kind, event.AccountID, metadata,
	)
	return err
}

// ListRecent returns the most recent events, newest first.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, occurred_at, kind, account_id, metadata
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event    domain.AuditEvent
			metadata []byte
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Kind, &event.AccountID, &metadata); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ListForAccount returns events for one account within the window.
func (s *AuditStore) ListForAccount(ctx context.Context, accountID uuid.UUID, since time.Time, limit int) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, occurred_at, kind, account_id, metadata
		FROM audit_events
		WHERE account_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, accountID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event    domain.AuditEvent
			metadata []byte
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Kind, &event.AccountID, &metadata); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
