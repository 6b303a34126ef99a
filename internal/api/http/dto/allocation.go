package dto

import "time"

// AllocateRequest asks for credentials in one category, or in several at
// once via Requests. Exactly one of the two forms must be used.
type AllocateRequest struct {
	Category string          `json:"category"`
	Quantity int             `json:"quantity"`
	Requests []CategorySlice `json:"requests"`
}

type CategorySlice struct {
	Category string `json:"category" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

type CredentialResponse struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	Status     string     `json:"status"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

type AllocationResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
	Count       int                  `json:"count"`
}

// RevealResponse carries decrypted secret material. It is returned only to
// the credential's owner and never logged.
type RevealResponse struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	Secret     string     `json:"secret"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

type ReleaseRequest struct {
	CredentialIDs []string `json:"credential_ids" binding:"required"`
}

type ReleaseFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type ReleaseResponse struct {
	OK       bool             `json:"ok"`
	Released []string         `json:"released"`
	Failed   []ReleaseFailure `json:"failed,omitempty"`
}

type AvailabilityResponse struct {
	Category  string `json:"category"`
	Available int64  `json:"available"`
}
