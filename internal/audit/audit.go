package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TypeAllocated = "credential.allocated"
	TypeReleased  = "credential.released"
	TypeImported  = "credential.imported"
	TypeRetired   = "credential.retired"
	TypeExhausted = "pool.exhausted"
)

// Event is one append-only record of something that happened to the pool.
type Event struct {
	ID            string         `json:"id,omitempty"`
	Type          string         `json:"type"`
	OwnerID       string         `json:"owner_id,omitempty"`
	CredentialIDs []string       `json:"credential_ids,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Recorder persists audit events and fans them out to the notifier when one
// is configured. Recording happens after the state change it describes has
// committed, so a failure here never affects the pool itself.
type Recorder struct {
	pool     *pgxpool.Pool
	notifier *Notifier // Optional, can be nil
}

func NewRecorder(pool *pgxpool.Pool, notifier *Notifier) *Recorder {
	return &Recorder{pool: pool, notifier: notifier}
}

func (r *Recorder) Record(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	var owner pgtype.UUID
	if event.OwnerID != "" {
		parsed, err := uuid.Parse(event.OwnerID)
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}
		owner = pgtype.UUID{Bytes: parsed, Valid: true}
	}

	ids := make([]pgtype.UUID, 0, len(event.CredentialIDs))
	for _, id := range event.CredentialIDs {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid credential id %q: %w", id, err)
		}
		ids = append(ids, pgtype.UUID{Bytes: parsed, Valid: true})
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (event_type, owner_id, credential_ids, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.Type, owner, ids, event.Metadata,
		pgtype.Timestamptz{Time: event.OccurredAt, Valid: true})
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if r.notifier != nil {
		if err := r.notifier.Publish(ctx, event); err != nil {
			slog.Warn("Failed to publish audit event", "type", event.Type, "error", err)
		}
	}
	return nil
}

// ListRecent returns the newest events, optionally filtered by type.
func (r *Recorder) ListRecent(ctx context.Context, eventType string, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, owner_id, credential_ids, metadata, occurred_at
		FROM audit_events
		WHERE $1 = '' OR event_type = $1
		ORDER BY occurred_at DESC, id
		LIMIT $2`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			id       pgtype.UUID
			owner    pgtype.UUID
			credIDs  []pgtype.UUID
			occurred pgtype.Timestamptz
			event    Event
		)
		if err := rows.Scan(&id, &event.Type, &owner, &credIDs, &event.Metadata, &occurred); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = uuidToString(id)
		event.OwnerID = uuidToString(owner)
		event.OccurredAt = occurred.Time
		for _, cid := range credIDs {
			event.CredentialIDs = append(event.CredentialIDs, uuidToString(cid))
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

func uuidToString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	u, err := uuid.FromBytes(id.Bytes[:])
	if err != nil {
		return ""
	}
	return u.String()
}
