package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auth-session/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, refresh_token_hash, user_agent, ip_address, is_active, expires_at, created_at, last_used_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, stringToNull(s.RefreshTokenHash), s.UserAgent, s.IPAddress,
		s.IsActive, s.ExpiresAt, s.CreatedAt, timeToNullTime(s.LastUsedAt))
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanOne(row)
}

// FindByRefreshTokenHash returns the session bound to hash, or nil if none.
func (r *PostgresRepository) FindByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	return scanOne(row)
}

// FindByUserID returns all sessions of userID, newest first.
func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// FindAll returns sessions newest first, paginated by limit and offset.
func (r *PostgresRepository) FindAll(ctx context.Context, limit, offset int32) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// Count returns the number of sessions for userID, or of all sessions when userID is empty.
func (r *PostgresRepository) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	var err error
	if userID == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n)
	}
	return n, err
}

// Update applies the non-nil changes to the session with id. Returns ErrNotFound if no row matched,
// including when c.ExpectRefreshTokenHash no longer equals the stored digest.
func (r *PostgresRepository) Update(ctx context.Context, id string, c Changes) error {
	var expect sql.NullString
	if c.ExpectRefreshTokenHash != nil {
		expect = sql.NullString{String: *c.ExpectRefreshTokenHash, Valid: true}
	}
	var hash sql.NullString
	if c.RefreshTokenHash != nil {
		hash = sql.NullString{String: *c.RefreshTokenHash, Valid: true}
	}
	var active sql.NullBool
	if c.IsActive != nil {
		active = sql.NullBool{Bool: *c.IsActive, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			refresh_token_hash = COALESCE($2, refresh_token_hash),
			is_active = COALESCE($3, is_active),
			last_used_at = COALESCE($4, last_used_at),
			expires_at = COALESCE($5, expires_at)
		WHERE id = $1
		  AND ($6::text IS NULL OR refresh_token_hash = $6)`,
		id, hash, active, timeToNullTime(c.LastUsedAt), timeToNullTime(c.ExpiresAt), expect)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID deletes the session with id.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
}

// DeleteByRefreshTokenHash deletes the session bound to hash.
func (r *PostgresRepository) DeleteByRefreshTokenHash(ctx context.Context, hash string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, hash)
}

// DeleteByUserID deletes every session of userID.
func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
}

// DeleteExpired deletes expired sessions and stale pending sessions.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now, pendingBefore time.Time) (int64, error) {
	return r.exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at <= $1
		   OR (refresh_token_hash IS NULL AND created_at <= $2)`, now, pendingBefore)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*domain.Session, error) {
	var (
		s        domain.Session
		hash     sql.NullString
		lastUsed sql.NullTime
	)
	if err := sc.Scan(&s.ID, &s.UserID, &hash, &s.UserAgent, &s.IPAddress,
		&s.IsActive, &s.ExpiresAt, &s.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	if hash.Valid {
		s.RefreshTokenHash = hash.String
	}
	s.LastUsedAt = nullTimeToPtr(lastUsed)
	return &s, nil
}

func scanOne(row *sql.Row) (*domain.Session, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanAll(rows *sql.Rows) ([]*domain.Session, error) {
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
