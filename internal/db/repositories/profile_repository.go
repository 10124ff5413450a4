// profile_repository.go implements ProfileRepository, a read-only view over the
// billing system's subscription records. qrgate resolves a caller's tier here;
// the rows themselves are owned and mutated by the billing webhook flow.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/qrgate/qrgate/internal/db/models"
)

// ProfileRepository handles profile/subscription reads
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID retrieves a profile by user ID. Returns (nil, nil) when the
// profile does not exist.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, subscription_tier, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	profile := &models.Profile{}
	err := r.db.GetContext(ctx, profile, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// GetTierByUserID returns the subscription tier name for a user, or "" when
// no profile row exists (callers fall back to the free tier).
func (r *ProfileRepository) GetTierByUserID(ctx context.Context, userID string) (string, error) {
	query := `SELECT subscription_tier FROM profiles WHERE user_id = $1`

	var tier string
	err := r.db.GetContext(ctx, &tier, query, userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return tier, nil
}
