// api_key_repository.go implements APIKeyRepository, providing database queries for
// credential lookup by hash, issuance, revocation, and usage counter updates.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrgate/qrgate/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key row. ID and CreatedAt are assigned here.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now().UTC()
	key.UsageResetAt = key.CreatedAt

	query := `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, environment,
		                      request_count, monthly_request_count, usage_reset_at,
		                      expires_at, last_used_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, NULL, NULL, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.KeyPrefix,
		key.Environment,
		key.UsageResetAt,
		key.ExpiresAt,
		key.CreatedAt,
	)

	return err
}

// GetByHash retrieves an API key by its SHA-256 digest (for authentication).
// Returns (nil, nil) when no row matches so callers can treat "unknown" and
// "never existed" identically.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_hash, key_prefix, environment,
		       request_count, monthly_request_count, usage_reset_at,
		       expires_at, last_used_at, revoked_at, created_at
		FROM api_keys
		WHERE key_hash = $1
	`

	key := &models.APIKey{}
	err := r.db.GetContext(ctx, key, query, keyHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return key, nil
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_hash, key_prefix, environment,
		       request_count, monthly_request_count, usage_reset_at,
		       expires_at, last_used_at, revoked_at, created_at
		FROM api_keys
		WHERE id = $1
	`

	key := &models.APIKey{}
	err := r.db.GetContext(ctx, key, query, keyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return key, nil
}

// ListByUser retrieves all API keys owned by a user, newest first
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_hash, key_prefix, environment,
		       request_count, monthly_request_count, usage_reset_at,
		       expires_at, last_used_at, revoked_at, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	keys := make([]*models.APIKey, 0)
	if err := r.db.SelectContext(ctx, &keys, query, userID); err != nil {
		return nil, err
	}

	return keys, nil
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `
		UPDATE api_keys
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, keyID, time.Now().UTC())
	return err
}

// Revoke soft-deletes an API key by setting revoked_at. The row is kept so the
// key's identity and usage history survive revocation; already-revoked keys
// are left untouched.
func (r *APIKeyRepository) Revoke(ctx context.Context, keyID, userID string) (bool, error) {
	query := `
		UPDATE api_keys
		SET revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, keyID, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CommitUsage increments the lifetime and monthly request counters and touches
// last_used_at for the key identified by hash. Called once per successfully
// processed request.
func (r *APIKeyRepository) CommitUsage(ctx context.Context, keyHash string) error {
	query := `
		UPDATE api_keys
		SET request_count = request_count + 1,
		    monthly_request_count = monthly_request_count + 1,
		    last_used_at = $2
		WHERE key_hash = $1
	`

	_, err := r.db.ExecContext(ctx, query, keyHash, time.Now().UTC())
	return err
}

// ResetMonthlyUsage zeroes monthly_request_count for every key whose last reset
// predates monthStart (the first moment of the current UTC calendar month).
// Returns the number of rows reset. The WHERE clause makes the operation
// idempotent across overlapping job runs and multiple instances.
func (r *APIKeyRepository) ResetMonthlyUsage(ctx context.Context, monthStart time.Time) (int64, error) {
	query := `
		UPDATE api_keys
		SET monthly_request_count = 0,
		    usage_reset_at = $1
		WHERE usage_reset_at < $1
	`

	res, err := r.db.ExecContext(ctx, query, monthStart)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
