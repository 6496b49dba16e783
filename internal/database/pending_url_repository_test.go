package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func pendingURLRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "url", "url_hash", "source", "status", "retry_count", "max_retries",
		"error_message", "discovered_at", "processed_at", "created_at", "updated_at",
	})
}

func TestPendingURLRepository_Lease_WithLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPendingURLRepository(db)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectQuery("UPDATE pending_urls").
		WithArgs(string(domain.URLStatusProcessing), "setn", string(domain.URLStatusPending), 3).
		WillReturnRows(pendingURLRows().
			AddRow(1, "https://x/1", "h1", "setn", "PROCESSING", 0, 3, nil, now, nil, now, now).
			AddRow(2, "https://x/2", "h2", "setn", "PROCESSING", 0, 3, nil, now, nil, now, now).
			AddRow(3, "https://x/3", "h3", "setn", "PROCESSING", 0, 3, nil, now, nil, now, now))

	leased, err := repo.Lease(ctx, "setn", 3)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}

	if len(leased) != 3 {
		t.Fatalf("expected 3 leased urls, got %d", len(leased))
	}
	for _, u := range leased {
		if u.Status != domain.URLStatusProcessing {
			t.Errorf("expected PROCESSING, got %s", u.Status)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPendingURLRepository_Lease_NoLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPendingURLRepository(db)

	// limit 0 must not bind a LIMIT argument.
	mock.ExpectQuery("UPDATE pending_urls").
		WithArgs(string(domain.URLStatusProcessing), "setn", string(domain.URLStatusPending)).
		WillReturnRows(pendingURLRows())

	leased, err := repo.Lease(context.Background(), "setn", 0)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	if len(leased) != 0 {
		t.Fatalf("expected empty lease, got %d", len(leased))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPendingURLRepository_MarkFailed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPendingURLRepository(db)

	mock.ExpectExec("UPDATE pending_urls").
		WithArgs("boom", string(domain.URLStatusFailed), string(domain.URLStatusPending), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkFailed(context.Background(), 42, "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPendingURLRepository_MarkFailed_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPendingURLRepository(db)

	mock.ExpectExec("UPDATE pending_urls").
		WithArgs("boom", string(domain.URLStatusFailed), string(domain.URLStatusPending), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkFailed(context.Background(), 99, "boom")
	if err == nil {
		t.Fatal("expected not-found error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPendingURLRepository_ResetStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPendingURLRepository(db)

	cutoff := time.Now().Add(-10 * time.Minute)
	mock.ExpectExec("UPDATE pending_urls").
		WithArgs(string(domain.URLStatusPending), string(domain.URLStatusProcessing), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.ResetStale(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ResetStale() error = %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 reset rows, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPendingURLRepository_InsertBatch_SkipsConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewPendingURLRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pending_urls").
		WithArgs("https://x/1", "h1", "setn", string(domain.URLStatusPending), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pending_urls").
		WithArgs("https://x/2", "h2", "setn", string(domain.URLStatusPending), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0)) // ON CONFLICT DO NOTHING
	mock.ExpectCommit()

	inserted, err := repo.InsertBatch(context.Background(), []*domain.PendingURL{
		{URL: "https://x/1", URLHash: "h1", Source: "setn", MaxRetries: 3},
		{URL: "https://x/2", URLHash: "h2", Source: "setn", MaxRetries: 3},
	})
	if err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if inserted != 1 {
		t.Errorf("expected 1 inserted, got %d", inserted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
