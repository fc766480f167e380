package models

import "time"

// DataTypeAPIKey tags API key records in the shared record table.
const DataTypeAPIKey = "APIKey"

// API key scopes.
const (
	ScopeIngest = "ingest"
	ScopeRead   = "read"
	ScopeAdmin  = "admin"
)

// APIKey represents an authentication key for the ingest endpoint and the operator API.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
