package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var profileCols = []string{"user_id", "subscription_tier", "created_at", "updated_at"}

func newProfileRepo(t *testing.T) (*ProfileRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProfileRepository(sqlx.NewDb(db, "postgres")), mock
}

// ---------------------------------------------------------------------------
// GetByUserID
// ---------------------------------------------------------------------------

func TestGetProfileByUserID_Found(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT.*FROM profiles.*WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow("user-1", "pro", time.Now(), time.Now()))

	profile, err := repo.GetByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile == nil {
		t.Fatal("expected profile, got nil")
	}
	if profile.SubscriptionTier != "pro" {
		t.Errorf("SubscriptionTier = %s, want pro", profile.SubscriptionTier)
	}
}

func TestGetProfileByUserID_NotFound(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT.*FROM profiles.*WHERE user_id").
		WillReturnRows(sqlmock.NewRows(profileCols))

	profile, err := repo.GetByUserID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile != nil {
		t.Errorf("expected nil profile, got %+v", profile)
	}
}

// ---------------------------------------------------------------------------
// GetTierByUserID
// ---------------------------------------------------------------------------

func TestGetTierByUserID_Found(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT subscription_tier FROM profiles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_tier"}).AddRow("business"))

	tier, err := repo.GetTierByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != "business" {
		t.Errorf("tier = %s, want business", tier)
	}
}

func TestGetTierByUserID_NotFound(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT subscription_tier FROM profiles").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_tier"}))

	tier, err := repo.GetTierByUserID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != "" {
		t.Errorf("tier = %q, want empty string", tier)
	}
}

func TestGetTierByUserID_DBError(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT subscription_tier FROM profiles").
		WillReturnError(errDB)

	if _, err := repo.GetTierByUserID(context.Background(), "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}
