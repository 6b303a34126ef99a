package pool

import (
	"time"
)

// Status is the lifecycle state of a credential row.
type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusAssigned   Status = "assigned"
	StatusRetired    Status = "retired"
)

// Credential is one allocatable unit of access material, e.g. a single
// VPN peer configuration. SecretMaterial is stored encrypted and is never
// interpreted here; it is decrypted only when delivered to its owner.
type Credential struct {
	ID             string
	Category       string
	Status         Status
	OwnerID        string
	AssignedAt     *time.Time
	SecretMaterial []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CategoryRequest is one slice of a mixed allocation: Quantity credentials
// from Category.
type CategoryRequest struct {
	Category string
	Quantity int
}

// ReleaseFailure reports why a single id in a release batch was rejected.
type ReleaseFailure struct {
	ID     string
	Reason FailureReason
}

// FailureReason classifies a per-id release failure.
type FailureReason string

const (
	ReasonNotFound  FailureReason = "not_found"
	ReasonRetired   FailureReason = "cannot_release_retired"
	ReasonInvalidID FailureReason = "invalid_id"
)

// ReleaseResult is the outcome of a release batch. Released contains every id
// that is unassigned after the call, including ids that already were
// (releasing twice is a safe no-op). OK is true when no id failed.
type ReleaseResult struct {
	Released []string
	Failed   []ReleaseFailure
}

// OK reports whether the whole batch succeeded.
func (r ReleaseResult) OK() bool {
	return len(r.Failed) == 0
}
