package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessdesk/credpool/internal/audit"
	"github.com/accessdesk/credpool/internal/secrets"
)

var (
	ErrEmptyBatch       = errors.New("batch must not be empty")
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Service manages the pool's stock: importing fresh credentials, retiring
// spent ones and exporting the assignment state. It stays off the allocation
// hot path; the only table it shares with the allocator is credentials.
type Service struct {
	pool     *pgxpool.Pool
	cipher   *secrets.Cipher
	recorder *audit.Recorder // Optional, can be nil
}

func NewService(pool *pgxpool.Pool, cipher *secrets.Cipher, recorder *audit.Recorder) *Service {
	return &Service{
		pool:     pool,
		cipher:   cipher,
		recorder: recorder,
	}
}

// Import inserts credentials as unassigned stock, encrypting the secret
// material before it is stored. Items are handled one by one: a duplicate or
// malformed item is reported in Failed and the rest of the batch proceeds.
func (s *Service) Import(ctx context.Context, actorID string, items []ImportItem) (ImportResult, error) {
	var result ImportResult
	if len(items) == 0 {
		return result, ErrEmptyBatch
	}

	for i, item := range items {
		if item.Category == "" {
			result.Failed = append(result.Failed, ImportFailure{Index: i, ID: item.ID, Reason: ReasonMissingCategory})
			continue
		}
		if item.Secret == "" {
			result.Failed = append(result.Failed, ImportFailure{Index: i, ID: item.ID, Reason: ReasonMissingSecret})
			continue
		}

		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			result.Failed = append(result.Failed, ImportFailure{Index: i, ID: item.ID, Reason: ReasonInvalidID})
			continue
		}

		sealed, err := s.cipher.Encrypt([]byte(item.Secret))
		if err != nil {
			return result, fmt.Errorf("encrypt secret material: %w", err)
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO credentials (id, category, status, secret_material)
			VALUES ($1, $2, 'unassigned', $3)`,
			pgtype.UUID{Bytes: parsed, Valid: true}, item.Category, sealed)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				result.Failed = append(result.Failed, ImportFailure{Index: i, ID: id, Reason: ReasonDuplicateID})
				continue
			}
			return result, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		result.ImportedIDs = append(result.ImportedIDs, id)
	}

	if len(result.ImportedIDs) > 0 {
		s.record(ctx, audit.Event{
			Type:          audit.TypeImported,
			OwnerID:       actorID,
			CredentialIDs: result.ImportedIDs,
		})
	}
	slog.Info("Credentials imported", "imported", len(result.ImportedIDs), "failed", len(result.Failed))
	return result, nil
}

// Retire removes credentials from circulation permanently, whatever state
// they are in. Retiring an assigned credential revokes it from its owner;
// retiring a retired one is a no-op reported as success.
func (s *Service) Retire(ctx context.Context, actorID string, ids []string) (RetireResult, error) {
	var result RetireResult
	if len(ids) == 0 {
		return result, ErrEmptyBatch
	}

	seen := make(map[string]bool, len(ids))
	valid := make([]pgtype.UUID, 0, len(ids))
	for _, raw := range ids {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			result.Failed = append(result.Failed, RetireFailure{ID: raw, Reason: ReasonInvalidID})
			continue
		}
		canonical := parsed.String()
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		valid = append(valid, pgtype.UUID{Bytes: parsed, Valid: true})
	}
	if len(valid) == 0 {
		return result, nil
	}
	sort.Slice(valid, func(i, j int) bool {
		return uuidString(valid[i]) < uuidString(valid[j])
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RetireResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var transitioned []string
	for _, id := range valid {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM credentials WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			result.Failed = append(result.Failed, RetireFailure{ID: uuidString(id), Reason: ReasonNotFound})
			continue
		}
		if err != nil {
			return RetireResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		if status == "retired" {
			result.Retired = append(result.Retired, uuidString(id))
			continue
		}
		_, err = tx.Exec(ctx, `
			UPDATE credentials
			SET status = 'retired', owner_id = NULL, assigned_at = NULL, updated_at = now()
			WHERE id = $1`, id)
		if err != nil {
			return RetireResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		result.Retired = append(result.Retired, uuidString(id))
		transitioned = append(transitioned, uuidString(id))
	}

	if err := tx.Commit(ctx); err != nil {
		return RetireResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(transitioned) > 0 {
		s.record(ctx, audit.Event{
			Type:          audit.TypeRetired,
			OwnerID:       actorID,
			CredentialIDs: transitioned,
		})
	}
	slog.Info("Credentials retired", "retired", len(result.Retired), "failed", len(result.Failed))
	return result, nil
}

// Export lists the assignment state of the pool, newest stock last. An empty
// category means every category.
func (s *Service) Export(ctx context.Context, category string) ([]ExportRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, status, owner_id, assigned_at, created_at
		FROM credentials
		WHERE $1 = '' OR category = $1
		ORDER BY category, id`, category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []ExportRecord
	for rows.Next() {
		var (
			id         pgtype.UUID
			owner      pgtype.UUID
			assignedAt pgtype.Timestamptz
			createdAt  pgtype.Timestamptz
			rec        ExportRecord
		)
		if err := rows.Scan(&id, &rec.Category, &rec.Status, &owner, &assignedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export record: %w", err)
		}
		rec.ID = uuidString(id)
		rec.OwnerID = uuidString(owner)
		rec.CreatedAt = createdAt.Time
		if assignedAt.Valid {
			t := assignedAt.Time
			rec.AssignedAt = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

// record persists an audit event synchronously. Inventory actions are not
// latency sensitive, so unlike the allocator there is no reason to detach;
// a failure is still only logged.
func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.recorder == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	recordCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(recordCtx, event); err != nil {
		slog.Warn("Failed to record audit event", "type", event.Type, "error", err)
	}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	u, err := uuid.FromBytes(id.Bytes[:])
	if err != nil {
		return ""
	}
	return u.String()
}
