// Package models defines the database model types for qrgate.
// Each type corresponds to a database table and uses struct tags for both JSON
// serialization and sqlx row scanning. Models are pure data types — business
// logic belongs in the service layer, query logic in the repositories layer.
package models

import "time"

// APIKey represents one issued API credential. The secret itself is never
// persisted: KeyHash holds its SHA-256 digest and KeyPrefix a short non-secret
// display fragment for dashboards.
type APIKey struct {
	ID                  string     `db:"id" json:"id"`
	UserID              string     `db:"user_id" json:"user_id"`
	Name                string     `db:"name" json:"name"`
	KeyHash             string     `db:"key_hash" json:"-"`
	KeyPrefix           string     `db:"key_prefix" json:"key_prefix"`
	Environment         string     `db:"environment" json:"environment"`
	RequestCount        int64      `db:"request_count" json:"request_count"`
	MonthlyRequestCount int64      `db:"monthly_request_count" json:"monthly_request_count"`
	UsageResetAt        time.Time  `db:"usage_reset_at" json:"usage_reset_at"`
	ExpiresAt           *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt          *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt           *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// IsRevoked reports whether the key has been soft-deleted. A revoked key must
// never validate, regardless of any other field.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired reports whether the key's optional expiry has passed.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
