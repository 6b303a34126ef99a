package inventory

import "time"

// ImportItem is one credential supplied by an operator for insertion into
// the pool. Secret holds the plaintext material; it is encrypted before it
// ever reaches the store. ID is optional and is generated when absent.
type ImportItem struct {
	ID       string `json:"id,omitempty"`
	Category string `json:"category"`
	Secret   string `json:"secret"`
}

// ImportFailure reports why one item in an import batch was not inserted.
type ImportFailure struct {
	Index  int
	ID     string
	Reason string
}

const (
	ReasonDuplicateID     = "duplicate_id"
	ReasonInvalidID       = "invalid_id"
	ReasonMissingCategory = "missing_category"
	ReasonMissingSecret   = "missing_secret"
	ReasonNotFound        = "not_found"
)

// ImportResult is the outcome of an import batch.
type ImportResult struct {
	ImportedIDs []string
	Failed      []ImportFailure
}

// RetireFailure reports why one id in a retire batch was rejected.
type RetireFailure struct {
	ID     string
	Reason string
}

// RetireResult is the outcome of a retire batch. Retired contains every id
// that is retired after the call, including ids that already were.
type RetireResult struct {
	Retired []string
	Failed  []RetireFailure
}

// ExportRecord is the assignment-state view of one credential. Secret
// material is deliberately absent: exports are inventory reports, not
// backups of the material itself.
type ExportRecord struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	Status     string     `json:"status"`
	OwnerID    string     `json:"owner_id,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
