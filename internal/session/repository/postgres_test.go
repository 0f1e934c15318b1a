package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"auth-session/backend/internal/session/domain"
)

var sessionCols = []string{"id", "user_id", "refresh_token_hash", "user_agent", "ip_address", "is_active", "expires_at", "created_at", "last_used_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_Create(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now().UTC()
	s := &domain.Session{ID: "s1", UserID: "u1", UserAgent: "ua", IPAddress: "1.2.3.4", IsActive: true, ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("s1", "u1", nil, "ua", "1.2.3.4", true, s.ExpiresAt, s.CreatedAt, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := r.Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestPostgresRepository_GetByID(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id = \\$1").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("s1", "u1", "hash", "ua", "ip", true, now.Add(time.Hour), now, now))
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	s, err := r.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if s.RefreshTokenHash != "hash" || s.LastUsedAt == nil || !s.IsActive {
		t.Errorf("session = %+v", s)
	}
	s, err = r.GetByID(context.Background(), "missing")
	if err != nil || s != nil {
		t.Errorf("GetByID missing = %+v, %v; want nil, nil", s, err)
	}
}

func TestPostgresRepository_FindByUserID(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM sessions WHERE user_id = \\$1 ORDER BY created_at DESC").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s2", "u1", nil, "", "", true, now.Add(time.Hour), now, nil).
			AddRow("s1", "u1", "h", "", "", true, now.Add(time.Hour), now.Add(-time.Minute), nil))

	list, err := r.FindByUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindByUserID: %v", err)
	}
	if len(list) != 2 || !list[0].IsPending() || list[1].RefreshTokenHash != "h" {
		t.Errorf("list = %+v", list)
	}
}

func TestPostgresRepository_Update(t *testing.T) {
	r, mock := newMockRepo(t)
	hash := "newhash"
	used := time.Now().UTC()

	mock.ExpectExec("UPDATE sessions SET").
		WithArgs("s1", "newhash", nil, used, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sessions SET").
		WithArgs("missing", nil, false, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := r.Update(context.Background(), "s1", Changes{RefreshTokenHash: &hash, LastUsedAt: &used}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	inactive := false
	if err := r.Update(context.Background(), "missing", Changes{IsActive: &inactive}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: want ErrNotFound, got %v", err)
	}
}

func TestPostgresRepository_UpdateExpectedDigest(t *testing.T) {
	r, mock := newMockRepo(t)
	oldHash, newHash := "oldhash", "newhash"

	mock.ExpectExec("UPDATE sessions SET .*AND \\(\\$6::text IS NULL OR refresh_token_hash = \\$6\\)").
		WithArgs("s1", "newhash", nil, nil, nil, "oldhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sessions SET").
		WithArgs("s1", "newhash", nil, nil, nil, "oldhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	c := Changes{ExpectRefreshTokenHash: &oldHash, RefreshTokenHash: &newHash}
	if err := r.Update(context.Background(), "s1", c); err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if err := r.Update(context.Background(), "s1", c); !errors.Is(err, ErrNotFound) {
		t.Errorf("second rotation with stale digest: want ErrNotFound, got %v", err)
	}
}

func TestPostgresRepository_Deletes(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now().UTC()
	pendingBefore := now.Add(-5 * time.Minute)

	mock.ExpectExec("DELETE FROM sessions WHERE refresh_token_hash = \\$1").WithArgs("h").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM sessions WHERE user_id = \\$1").WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM sessions\\s+WHERE expires_at <= \\$1").WithArgs(now, pendingBefore).WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	if n, err := r.DeleteByRefreshTokenHash(ctx, "h"); err != nil || n != 0 {
		t.Errorf("DeleteByRefreshTokenHash = %d, %v", n, err)
	}
	if n, err := r.DeleteByUserID(ctx, "u1"); err != nil || n != 3 {
		t.Errorf("DeleteByUserID = %d, %v", n, err)
	}
	if n, err := r.DeleteExpired(ctx, now, pendingBefore); err != nil || n != 2 {
		t.Errorf("DeleteExpired = %d, %v", n, err)
	}
}

func TestPostgresRepository_Count(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM sessions WHERE user_id = \\$1").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM sessions$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	if n, err := r.Count(context.Background(), "u1"); err != nil || n != 2 {
		t.Errorf("Count(u1) = %d, %v", n, err)
	}
	if n, err := r.Count(context.Background(), ""); err != nil || n != 7 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}
