package dto

import "time"

type ImportItem struct {
	ID       string `json:"id"`
	Category string `json:"category" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

type ImportRequest struct {
	Items []ImportItem `json:"items" binding:"required,min=1"`
}

type ImportFailure struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

type ImportResponse struct {
	ImportedIDs []string        `json:"imported_ids"`
	Imported    int             `json:"imported"`
	Failed      []ImportFailure `json:"failed,omitempty"`
}

type RetireRequest struct {
	CredentialIDs []string `json:"credential_ids" binding:"required,min=1"`
}

type RetireFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type RetireResponse struct {
	OK      bool            `json:"ok"`
	Retired []string        `json:"retired"`
	Failed  []RetireFailure `json:"failed,omitempty"`
}

type ExportedCredential struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	Status     string     `json:"status"`
	OwnerID    string     `json:"owner_id,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ExportResponse struct {
	Credentials []ExportedCredential `json:"credentials"`
	Count       int                  `json:"count"`
}

// AdminAllocateRequest allocates on behalf of an owner, for operators
// provisioning devices that cannot authenticate themselves.
type AdminAllocateRequest struct {
	OwnerID  string          `json:"owner_id" binding:"required"`
	Category string          `json:"category"`
	Quantity int             `json:"quantity"`
	Requests []CategorySlice `json:"requests"`
}

type AuditEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	OwnerID       string         `json:"owner_id,omitempty"`
	CredentialIDs []string       `json:"credential_ids,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type AuditEventsResponse struct {
	Events []AuditEvent `json:"events"`
	Count  int          `json:"count"`
}
