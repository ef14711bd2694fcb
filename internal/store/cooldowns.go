package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) SetCooldown(ctx context.Context, userID string, until time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cooldowns (user_id, expires_at_ms) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET expires_at_ms = excluded.expires_at_ms`,
			userID, until.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert cooldown: %w", err)
		}
		return nil
	})
}

// Cooldown returns the expiry for a user; ok is false when none is stored.
// Expired entries are still returned until pruned, callers compare with now.
func (s *Store) Cooldown(ctx context.Context, userID string) (until time.Time, ok bool, err error) {
	var ms int64
	err = s.db.QueryRowContext(ctx, `SELECT expires_at_ms FROM cooldowns WHERE user_id = ?`, userID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query cooldown: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *Store) PruneCooldowns(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cooldowns WHERE expires_at_ms <= ?`, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("prune cooldowns: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
