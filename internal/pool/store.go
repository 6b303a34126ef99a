package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// releaseOutcome classifies what happened to one id inside a release batch.
type releaseOutcome int

const (
	releaseDone releaseOutcome = iota
	releaseAlreadyUnassigned
	releaseRetired
	releaseMissing
)

// Store runs the credential table primitives. The locking primitives are
// only ever called inside a transaction owned by Service, so they take the
// transaction explicitly.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// lockCandidates locks up to limit unassigned credentials of the given
// category and returns them in id order. Rows locked by concurrent
// transactions are skipped rather than waited on, so two allocators never
// contend for the same candidate row.
func (s *Store) lockCandidates(ctx context.Context, tx pgx.Tx, category string, limit int) ([]Credential, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, category, status, owner_id, assigned_at, secret_material, created_at, updated_at
		FROM credentials
		WHERE status = 'unassigned' AND category = $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("lock candidates: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock candidates: %w", err)
	}
	return creds, nil
}

// assignLocked flips already-locked candidate rows to assigned. The caller
// must hold row locks on every id via lockCandidates in the same transaction.
func (s *Store) assignLocked(ctx context.Context, tx pgx.Tx, ids []pgtype.UUID, owner pgtype.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE credentials
		SET status = 'assigned', owner_id = $1, assigned_at = $2, updated_at = $2
		WHERE id = ANY($3) AND status = 'unassigned'`,
		owner, pgtype.Timestamptz{Time: at, Valid: true}, ids)
	if err != nil {
		return fmt.Errorf("assign credentials: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("assigned %d of %d locked credentials", tag.RowsAffected(), len(ids))
	}
	return nil
}

// releaseOne locks a single row and returns it to the pool if it is
// currently assigned. Locking first makes the outcome deterministic under
// concurrent allocation: whoever gets the row lock decides the next state.
func (s *Store) releaseOne(ctx context.Context, tx pgx.Tx, id pgtype.UUID) (releaseOutcome, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM credentials WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return releaseMissing, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspect credential %s: %w", uuidToString(id), err)
	}

	switch Status(status) {
	case StatusAssigned:
		_, err := tx.Exec(ctx, `
			UPDATE credentials
			SET status = 'unassigned', owner_id = NULL, assigned_at = NULL, updated_at = now()
			WHERE id = $1`, id)
		if err != nil {
			return 0, fmt.Errorf("release credential %s: %w", uuidToString(id), err)
		}
		return releaseDone, nil
	case StatusUnassigned:
		return releaseAlreadyUnassigned, nil
	case StatusRetired:
		return releaseRetired, nil
	}
	return 0, fmt.Errorf("credential %s has unexpected status %q", uuidToString(id), status)
}

// CountAvailable reports how many unassigned credentials the category holds.
// The number is advisory: it can be stale by the time the caller acts on it.
func (s *Store) CountAvailable(ctx context.Context, category string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM credentials WHERE status = 'unassigned' AND category = $1`,
		category).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}
	return count, nil
}

// GetByID fetches a single credential row, pgx.ErrNoRows included.
func (s *Store) GetByID(ctx context.Context, id pgtype.UUID) (Credential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, category, status, owner_id, assigned_at, secret_material, created_at, updated_at
		FROM credentials
		WHERE id = $1`, id)
	return scanCredential(row)
}

// ListByOwner returns the credentials currently assigned to an owner.
func (s *Store) ListByOwner(ctx context.Context, owner pgtype.UUID) ([]Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, status, owner_id, assigned_at, secret_material, created_at, updated_at
		FROM credentials
		WHERE owner_id = $1 AND status = 'assigned'
		ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	return creds, nil
}

func scanCredential(row pgx.Row) (Credential, error) {
	var (
		id         pgtype.UUID
		category   string
		status     string
		ownerID    pgtype.UUID
		assignedAt pgtype.Timestamptz
		secret     []byte
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &category, &status, &ownerID, &assignedAt, &secret, &createdAt, &updatedAt); err != nil {
		return Credential{}, err
	}

	cred := Credential{
		ID:             uuidToString(id),
		Category:       category,
		Status:         Status(status),
		OwnerID:        uuidToString(ownerID),
		SecretMaterial: secret,
		CreatedAt:      createdAt.Time,
		UpdatedAt:      updatedAt.Time,
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		cred.AssignedAt = &t
	}
	return cred, nil
}

func toUUID(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
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
