package models

import "time"

// Profile mirrors the billing system's per-account subscription record.
// qrgate only ever reads these rows; they are mutated by the webhook-driven
// billing flow, which is a separate service.
type Profile struct {
	UserID           string    `db:"user_id" json:"user_id"`
	SubscriptionTier string    `db:"subscription_tier" json:"subscription_tier"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
