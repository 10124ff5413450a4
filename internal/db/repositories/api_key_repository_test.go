package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/qrgate/qrgate/internal/db/models"
)

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var apiKeyCols = []string{
	"id", "user_id", "name", "key_hash", "key_prefix", "environment",
	"request_count", "monthly_request_count", "usage_reset_at",
	"expires_at", "last_used_at", "revoked_at", "created_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleAPIKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(apiKeyCols).
		AddRow("key-1", "user-1", "CI Key", "hashedkey", "qrk_abc123def456", "production",
			int64(42), int64(7), time.Now(), nil, nil, nil, time.Now())
}

func emptyAPIKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(apiKeyCols)
}

func newAPIKeyRepo(t *testing.T) (*APIKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAPIKeyRepository(sqlx.NewDb(db, "postgres")), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(1, 1))

	key := &models.APIKey{
		UserID:      "user-1",
		Name:        "Test Key",
		KeyHash:     "hash",
		KeyPrefix:   "qrk_test12345678",
		Environment: "production",
	}
	if err := repo.Create(context.Background(), key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if key.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}
	if !key.UsageResetAt.Equal(key.CreatedAt) {
		t.Error("expected UsageResetAt to match CreatedAt")
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnError(errDB)

	key := &models.APIKey{UserID: "user-1", Name: "Test Key"}
	if err := repo.Create(context.Background(), key); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetByHash
// ---------------------------------------------------------------------------

func TestGetByHash_Found(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE key_hash").
		WithArgs("hashedkey").
		WillReturnRows(sampleAPIKeyRow())

	key, err := repo.GetByHash(context.Background(), "hashedkey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil {
		t.Fatal("expected key, got nil")
	}
	if key.ID != "key-1" {
		t.Errorf("ID = %s, want key-1", key.ID)
	}
	if key.MonthlyRequestCount != 7 {
		t.Errorf("MonthlyRequestCount = %d, want 7", key.MonthlyRequestCount)
	}
}

func TestGetByHash_NotFound(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE key_hash").
		WillReturnRows(emptyAPIKeyRow())

	key, err := repo.GetByHash(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key, got %+v", key)
	}
}

func TestGetByHash_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE key_hash").
		WillReturnError(errDB)

	if _, err := repo.GetByHash(context.Background(), "hash"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestGetByID_Found(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WithArgs("key-1").
		WillReturnRows(sampleAPIKeyRow())

	key, err := repo.GetByID(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil || key.ID != "key-1" {
		t.Errorf("key = %+v, want key-1", key)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WillReturnRows(emptyAPIKeyRow())

	key, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key, got %+v", key)
	}
}

// ---------------------------------------------------------------------------
// ListByUser
// ---------------------------------------------------------------------------

func TestListByUser_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	rows := sqlmock.NewRows(apiKeyCols).
		AddRow("key-2", "user-1", "Newer", "hash2", "qrk_def456ghi789", "test",
			int64(0), int64(0), time.Now(), nil, nil, nil, time.Now()).
		AddRow("key-1", "user-1", "Older", "hash1", "qrk_abc123def456", "production",
			int64(42), int64(7), time.Now(), nil, nil, nil, time.Now())
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE user_id.*ORDER BY created_at DESC").
		WithArgs("user-1").
		WillReturnRows(rows)

	keys, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	if keys[0].ID != "key-2" {
		t.Errorf("keys[0].ID = %s, want key-2", keys[0].ID)
	}
}

func TestListByUser_Empty(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE user_id").
		WillReturnRows(emptyAPIKeyRow())

	keys, err := repo.ListByUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("len(keys) = %d, want 0", len(keys))
	}
}

// ---------------------------------------------------------------------------
// Revoke
// ---------------------------------------------------------------------------

func TestRevoke_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys.*SET revoked_at.*WHERE id.*AND user_id.*AND revoked_at IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))

	revoked, err := repo.Revoke(context.Background(), "key-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Error("expected revoked = true")
	}
}

func TestRevoke_AlreadyRevokedOrMissing(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys.*SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := repo.Revoke(context.Background(), "key-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Error("expected revoked = false")
	}
}

func TestRevoke_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys.*SET revoked_at").
		WillReturnError(errDB)

	if _, err := repo.Revoke(context.Background(), "key-1", "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// CommitUsage
// ---------------------------------------------------------------------------

func TestCommitUsage_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys.*request_count = request_count \\+ 1.*monthly_request_count = monthly_request_count \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CommitUsage(context.Background(), "hashedkey"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCommitUsage_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys").
		WillReturnError(errDB)

	if err := repo.CommitUsage(context.Background(), "hashedkey"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ResetMonthlyUsage
// ---------------------------------------------------------------------------

func TestResetMonthlyUsage_Success(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	monthStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE api_keys.*SET monthly_request_count = 0.*WHERE usage_reset_at").
		WithArgs(monthStart).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ResetMonthlyUsage(context.Background(), monthStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("reset count = %d, want 3", n)
	}
}

func TestResetMonthlyUsage_NothingToReset(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys.*SET monthly_request_count = 0").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.ResetMonthlyUsage(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("reset count = %d, want 0", n)
	}
}

func TestResetMonthlyUsage_DBError(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys").
		WillReturnError(errDB)

	if _, err := repo.ResetMonthlyUsage(context.Background(), time.Now().UTC()); err == nil {
		t.Error("expected error, got nil")
	}
}
