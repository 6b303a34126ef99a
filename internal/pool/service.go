package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/accessdesk/credpool/internal/audit"
)

const DefaultMaxBatch = 100

var (
	ErrInvalidQuantity  = errors.New("requested quantity must be a positive integer")
	ErrBatchTooLarge    = errors.New("requested quantity exceeds the batch limit")
	ErrInvalidCategory  = errors.New("category must not be empty")
	ErrInvalidOwner     = errors.New("invalid owner id")
	ErrPoolExhausted    = errors.New("not enough unassigned credentials")
	ErrNotFound         = errors.New("credential not found")
	ErrNotOwner         = errors.New("credential is not assigned to this owner")
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Service hands out credentials from the pool and takes them back. Every
// allocation runs in a single transaction so a batch is either granted in
// full or not at all, and two concurrent requests can never be granted the
// same credential.
type Service struct {
	store    *Store
	recorder *audit.Recorder // Optional, can be nil
	maxBatch int
}

func NewService(store *Store, recorder *audit.Recorder, maxBatch int) *Service {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Service{
		store:    store,
		recorder: recorder,
		maxBatch: maxBatch,
	}
}

// MaxBatch is the largest quantity a single allocation or release may ask for.
func (s *Service) MaxBatch() int {
	return s.maxBatch
}

// Allocate grants quantity credentials of one category to the owner.
func (s *Service) Allocate(ctx context.Context, ownerID, category string, quantity int) ([]Credential, error) {
	return s.AllocateSet(ctx, ownerID, []CategoryRequest{{Category: category, Quantity: quantity}})
}

// AllocateSet grants credentials from several categories in one transaction.
// If any category cannot be satisfied in full, nothing is granted.
func (s *Service) AllocateSet(ctx context.Context, ownerID string, requests []CategoryRequest) ([]Credential, error) {
	owner, err := toUUID(ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, ownerID)
	}

	merged, total, err := mergeRequests(requests)
	if err != nil {
		return nil, err
	}
	if total > s.maxBatch {
		return nil, fmt.Errorf("%w: requested %d, limit %d", ErrBatchTooLarge, total, s.maxBatch)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	granted := make([]Credential, 0, total)
	for _, req := range merged {
		creds, err := s.store.lockCandidates(ctx, tx, req.Category, req.Quantity)
		if err != nil {
			return nil, storeUnavailable(err)
		}
		if len(creds) < req.Quantity {
			s.recordExhausted(ownerID, req.Category, req.Quantity, len(creds))
			return nil, fmt.Errorf("%w: category %q has %d of %d requested",
				ErrPoolExhausted, req.Category, len(creds), req.Quantity)
		}

		ids := make([]pgtype.UUID, 0, len(creds))
		for _, cred := range creds {
			id, err := toUUID(cred.ID)
			if err != nil {
				return nil, storeUnavailable(fmt.Errorf("malformed credential id %q: %v", cred.ID, err))
			}
			ids = append(ids, id)
		}
		if err := s.store.assignLocked(ctx, tx, ids, owner, now); err != nil {
			return nil, storeUnavailable(err)
		}

		for i := range creds {
			creds[i].Status = StatusAssigned
			creds[i].OwnerID = ownerID
			creds[i].AssignedAt = &now
			creds[i].UpdatedAt = now
		}
		granted = append(granted, creds...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeUnavailable(err)
	}

	s.recordEvent(audit.Event{
		Type:          audit.TypeAllocated,
		OwnerID:       ownerID,
		CredentialIDs: credentialIDs(granted),
		OccurredAt:    now,
	})
	slog.Info("Credentials allocated", "owner_id", ownerID, "count", len(granted))
	return granted, nil
}

// Release returns assigned credentials to the pool. Each id is handled on
// its own: releasing an already-unassigned credential succeeds, a retired or
// unknown credential is reported in Failed, and everything that can be
// released is released even when some ids fail.
func (s *Service) Release(ctx context.Context, ids []string) (ReleaseResult, error) {
	var result ReleaseResult
	if len(ids) == 0 {
		return result, nil
	}
	if len(ids) > s.maxBatch {
		return result, fmt.Errorf("%w: requested %d, limit %d", ErrBatchTooLarge, len(ids), s.maxBatch)
	}

	seen := make(map[string]bool, len(ids))
	valid := make([]pgtype.UUID, 0, len(ids))
	for _, raw := range ids {
		parsed, err := toUUID(raw)
		if err != nil {
			result.Failed = append(result.Failed, ReleaseFailure{ID: raw, Reason: ReasonInvalidID})
			continue
		}
		canonical := uuidToString(parsed)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		valid = append(valid, parsed)
	}
	if len(valid) == 0 {
		return result, nil
	}
	// Row locks are taken in id order so overlapping release batches cannot
	// deadlock each other.
	sort.Slice(valid, func(i, j int) bool {
		return uuidToString(valid[i]) < uuidToString(valid[j])
	})

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return ReleaseResult{}, storeUnavailable(err)
	}
	defer tx.Rollback(ctx)

	var transitioned []string
	for _, id := range valid {
		outcome, err := s.store.releaseOne(ctx, tx, id)
		if err != nil {
			return ReleaseResult{}, storeUnavailable(err)
		}
		canonical := uuidToString(id)
		switch outcome {
		case releaseDone:
			result.Released = append(result.Released, canonical)
			transitioned = append(transitioned, canonical)
		case releaseAlreadyUnassigned:
			result.Released = append(result.Released, canonical)
		case releaseRetired:
			result.Failed = append(result.Failed, ReleaseFailure{ID: canonical, Reason: ReasonRetired})
		case releaseMissing:
			result.Failed = append(result.Failed, ReleaseFailure{ID: canonical, Reason: ReasonNotFound})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ReleaseResult{}, storeUnavailable(err)
	}

	if len(transitioned) > 0 {
		s.recordEvent(audit.Event{
			Type:          audit.TypeReleased,
			CredentialIDs: transitioned,
			OccurredAt:    time.Now().UTC(),
		})
	}
	slog.Info("Credentials released", "released", len(result.Released), "failed", len(result.Failed))
	return result, nil
}

// CountAvailable reports how many unassigned credentials a category holds
// right now. The answer is advisory only and carries no reservation.
func (s *Service) CountAvailable(ctx context.Context, category string) (int64, error) {
	if category == "" {
		return 0, ErrInvalidCategory
	}
	count, err := s.store.CountAvailable(ctx, category)
	if err != nil {
		return 0, storeUnavailable(err)
	}
	return count, nil
}

// GetOwned fetches one credential and verifies it is assigned to the owner.
func (s *Service) GetOwned(ctx context.Context, ownerID, credentialID string) (Credential, error) {
	id, err := toUUID(credentialID)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %q", ErrNotFound, credentialID)
	}

	cred, err := s.store.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, fmt.Errorf("%w: %q", ErrNotFound, credentialID)
	}
	if err != nil {
		return Credential{}, storeUnavailable(err)
	}
	if cred.Status != StatusAssigned || cred.OwnerID != ownerID {
		return Credential{}, fmt.Errorf("%w: %q", ErrNotOwner, credentialID)
	}
	return cred, nil
}

// ListOwned returns every credential currently assigned to the owner.
func (s *Service) ListOwned(ctx context.Context, ownerID string) ([]Credential, error) {
	owner, err := toUUID(ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, ownerID)
	}
	creds, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return creds, nil
}

// mergeRequests validates the request slices, merges duplicate categories and
// orders them so every allocation locks categories in the same order.
func mergeRequests(requests []CategoryRequest) ([]CategoryRequest, int, error) {
	if len(requests) == 0 {
		return nil, 0, ErrInvalidQuantity
	}

	quantities := make(map[string]int, len(requests))
	total := 0
	for _, req := range requests {
		if req.Category == "" {
			return nil, 0, ErrInvalidCategory
		}
		if req.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: category %q requested %d", ErrInvalidQuantity, req.Category, req.Quantity)
		}
		quantities[req.Category] += req.Quantity
		total += req.Quantity
	}

	merged := make([]CategoryRequest, 0, len(quantities))
	for category, quantity := range quantities {
		merged = append(merged, CategoryRequest{Category: category, Quantity: quantity})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Category < merged[j].Category
	})
	return merged, total, nil
}

func (s *Service) recordExhausted(ownerID, category string, requested, available int) {
	s.recordEvent(audit.Event{
		Type:    audit.TypeExhausted,
		OwnerID: ownerID,
		Metadata: map[string]any{
			"category":  category,
			"requested": requested,
			"available": available,
		},
		OccurredAt: time.Now().UTC(),
	})
}

// recordEvent hands the event to the recorder without blocking the caller.
// The state change has already committed, so recording gets one retry and a
// failure after that is logged and otherwise ignored.
func (s *Service) recordEvent(event audit.Event) {
	if s.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.recorder.Record(ctx, event)
		if err == nil {
			return
		}
		time.Sleep(time.Second)
		if err := s.recorder.Record(ctx, event); err != nil {
			slog.Warn("Failed to record audit event", "type", event.Type, "error", err)
		}
	}()
}

func credentialIDs(creds []Credential) []string {
	ids := make([]string, 0, len(creds))
	for _, cred := range creds {
		ids = append(ids, cred.ID)
	}
	return ids
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
