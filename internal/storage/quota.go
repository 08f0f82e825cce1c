package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sjawhar/pitchspeak/internal/quota"
)

// ConsumeQuota implements quota.Counter. The read and the write share one
// transaction on the store's single connection, so concurrent callers are
// serialized.
func (s *SQLiteStore) ConsumeQuota(ctx context.Context, key string, window time.Duration) (quota.Usage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return quota.Usage{}, fmt.Errorf("begin quota transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	prior, expiresAt, err := readCounter(ctx, tx, key, now)
	if err != nil {
		return quota.Usage{}, err
	}
	if expiresAt.IsZero() {
		expiresAt = now.Add(window)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quota_counters(key, count, expires_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET count = excluded.count, expires_at = excluded.expires_at`,
		key,
		prior+1,
		expiresAt.Format(time.RFC3339Nano),
	); err != nil {
		return quota.Usage{}, fmt.Errorf("increment quota %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return quota.Usage{}, fmt.Errorf("commit quota %s: %w", key, err)
	}

	return quota.Usage{
		Prior:  prior,
		Count:  prior + 1,
		TTL:    expiresAt.Sub(now),
		Exists: true,
	}, nil
}

// InspectQuota implements quota.Counter. Expired counters read as absent.
func (s *SQLiteStore) InspectQuota(ctx context.Context, key string) (quota.Usage, error) {
	now := s.now().UTC()
	count, expiresAt, err := readCounter(ctx, s.db, key, now)
	if err != nil {
		return quota.Usage{}, err
	}
	if expiresAt.IsZero() {
		return quota.Usage{}, nil
	}
	return quota.Usage{Prior: count, Count: count, TTL: expiresAt.Sub(now), Exists: true}, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readCounter returns the live count and expiry for key. A missing or expired
// counter yields a zero count and a zero expiry.
func readCounter(ctx context.Context, q queryRower, key string, now time.Time) (int64, time.Time, error) {
	var (
		count   int64
		expires string
	)
	err := q.QueryRowContext(ctx, `SELECT count, expires_at FROM quota_counters WHERE key = ?`, key).Scan(&count, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read quota %s: %w", key, err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, expires)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse quota %s expiry: %w", key, err)
	}
	if !now.Before(expiresAt) {
		return 0, time.Time{}, nil
	}
	return count, expiresAt, nil
}
