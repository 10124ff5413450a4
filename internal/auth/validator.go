package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/qrgate/qrgate/internal/db/models"
	"github.com/qrgate/qrgate/internal/db/repositories"
	"github.com/qrgate/qrgate/internal/safego"
	"github.com/qrgate/qrgate/internal/telemetry"
	"github.com/qrgate/qrgate/internal/tiers"
)

// Reason classifies why a credential failed validation.
type Reason string

const (
	// ReasonMalformed: no token, or the token does not match the issued shape.
	ReasonMalformed Reason = "malformed"
	// ReasonInvalid: no credential row matches the token's digest. Deliberately
	// indistinguishable from "never existed" to prevent key enumeration.
	ReasonInvalid Reason = "invalid"
	// ReasonRevoked: the credential has been soft-deleted.
	ReasonRevoked Reason = "revoked"
	// ReasonExpired: the credential's optional expiry has passed.
	ReasonExpired Reason = "expired"
)

// Caller is the validated identity produced once per request and passed down
// the gate pipeline. It carries no secret material: KeyHash is the stored
// digest, never the token.
type Caller struct {
	UserID  string     `json:"user_id"`
	Tier    tiers.Tier `json:"tier"`
	KeyHash string     `json:"-"`
	// KeyID identifies the credential row for usage endpoints and audit logs.
	KeyID string `json:"key_id"`
	// MonthlyUsed is the persisted monthly counter read during validation,
	// used as the quota fallback when the shared counter store is down.
	MonthlyUsed int64 `json:"-"`
}

// Validator resolves bearer tokens into validated callers.
type Validator struct {
	keys     *repositories.APIKeyRepository
	profiles *repositories.ProfileRepository
	prefix   string

	now func() time.Time
}

// NewValidator creates a Validator. prefix is the configured issuance prefix
// (e.g. "qrk"); tokens without it are rejected before any database work.
func NewValidator(keys *repositories.APIKeyRepository, profiles *repositories.ProfileRepository, prefix string) *Validator {
	return &Validator{
		keys:     keys,
		profiles: profiles,
		prefix:   prefix,
		now:      time.Now,
	}
}

// Validate checks a bearer token and returns the validated caller, or the
// reason it failed. A non-nil error means an infrastructure fault (database
// unreachable), not a verdict about the credential.
//
// The raw token is hashed immediately and never retained, logged, or compared
// beyond this call.
func (v *Validator) Validate(ctx context.Context, token string) (*Caller, Reason, error) {
	if token == "" || !HasPrefix(token, v.prefix) {
		return nil, v.fail(ReasonMalformed), nil
	}

	keyHash := HashKey(token)

	key, err := v.keys.GetByHash(ctx, keyHash)
	if err != nil {
		return nil, "", err
	}
	if key == nil {
		return nil, v.fail(ReasonInvalid), nil
	}

	// Revocation wins over everything else.
	if key.IsRevoked() {
		return nil, v.fail(ReasonRevoked), nil
	}
	if key.IsExpired(v.now()) {
		return nil, v.fail(ReasonExpired), nil
	}

	tierName, err := v.profiles.GetTierByUserID(ctx, key.UserID)
	if err != nil {
		return nil, "", err
	}

	v.touchLastUsed(key)

	return &Caller{
		UserID:      key.UserID,
		Tier:        tiers.ByName(tierName),
		KeyHash:     key.KeyHash,
		KeyID:       key.ID,
		MonthlyUsed: key.MonthlyRequestCount,
	}, "", nil
}

// touchLastUsed records key usage on a best-effort basis. It is fire-and-forget
// with a logged failure: a missed timestamp is not a correctness problem, and a
// synchronous write here would add DB latency to every authenticated request.
func (v *Validator) touchLastUsed(key *models.APIKey) {
	keyID := key.ID
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := v.keys.UpdateLastUsed(ctx, keyID); err != nil {
			slog.Warn("failed to update api key last_used_at", "key_id", keyID, "error", err)
		}
	})
}

func (v *Validator) fail(reason Reason) Reason {
	telemetry.AuthFailuresTotal.WithLabelValues(string(reason)).Inc()
	return reason
}
