package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CounterKind names an additive per-member statistic. Counters and
// sessions are kept per guild, so one user has separate numbers in each.
type CounterKind string

const (
	CounterMessages CounterKind = "messages"
	CounterVoiceMs  CounterKind = "voice_ms"
	CounterGameMs   CounterKind = "game_ms"
	CounterAccepted CounterKind = "accepted"
)

// SessionKind names an open "last seen" interval that accrues into a counter.
type SessionKind string

const (
	SessionVoice SessionKind = "voice"
	SessionGame  SessionKind = "game"
)

// Counter returns the kind an open session accrues into.
func (k SessionKind) Counter() CounterKind {
	switch k {
	case SessionVoice:
		return CounterVoiceMs
	case SessionGame:
		return CounterGameMs
	}
	return CounterKind(string(k) + "_ms")
}

type CounterRow struct {
	UserID string
	Value  int64
}

func (s *Store) AddCounter(ctx context.Context, guildID, userID string, kind CounterKind, delta int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return addCounter(ctx, tx, guildID, userID, kind, delta)
	})
}

func addCounter(ctx context.Context, tx *sql.Tx, guildID, userID string, kind CounterKind, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO activity_counters (guild_id, user_id, kind, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, kind) DO UPDATE SET value = value + excluded.value`,
		guildID, userID, string(kind), delta,
	)
	if err != nil {
		return fmt.Errorf("add %s counter: %w", kind, err)
	}
	return nil
}

func (s *Store) Counter(ctx context.Context, guildID, userID string, kind CounterKind) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM activity_counters WHERE guild_id = ? AND user_id = ? AND kind = ?`,
		guildID, userID, string(kind),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query %s counter: %w", kind, err)
	}
	return v, nil
}

// Counters lists every member's value of one kind in a guild, highest first.
func (s *Store) Counters(ctx context.Context, guildID string, kind CounterKind) ([]CounterRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, value FROM activity_counters
		WHERE guild_id = ? AND kind = ? AND value > 0 ORDER BY value DESC, user_id ASC`,
		guildID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s counters: %w", kind, err)
	}
	defer rows.Close()

	var out []CounterRow
	for rows.Next() {
		var r CounterRow
		if err := rows.Scan(&r.UserID, &r.Value); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartSession opens (or restarts) a session at the given time without
// accruing anything.
func (s *Store) StartSession(ctx context.Context, guildID, userID string, kind SessionKind, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertSession(ctx, tx, guildID, userID, kind, at)
	})
}

// TouchSession accrues the time since the session was last seen and resets
// it to at. A missing session is opened. Reports whether one was open.
func (s *Store) TouchSession(ctx context.Context, guildID, userID string, kind SessionKind, at time.Time) (bool, error) {
	var open bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		open, err = accrue(ctx, tx, guildID, userID, kind, at)
		if err != nil {
			return err
		}
		return upsertSession(ctx, tx, guildID, userID, kind, at)
	})
	return open, err
}

// EndSession accrues and closes the session. Reports whether one was open.
func (s *Store) EndSession(ctx context.Context, guildID, userID string, kind SessionKind, at time.Time) (bool, error) {
	var open bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		open, err = accrue(ctx, tx, guildID, userID, kind, at)
		if err != nil || !open {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM activity_sessions WHERE guild_id = ? AND user_id = ? AND kind = ?`,
			guildID, userID, string(kind),
		); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	return open, err
}

// Checkpoint accrues every open session of a kind, in every guild, up to at
// and keeps them open. Returns the number of sessions flushed.
func (s *Store) Checkpoint(ctx context.Context, kind SessionKind, at time.Time) (int, error) {
	return s.flushSessions(ctx, kind, at, true)
}

// EndAllSessions accrues every open session of a kind up to at and closes
// them, so time while the bot is offline is never counted.
func (s *Store) EndAllSessions(ctx context.Context, kind SessionKind, at time.Time) (int, error) {
	return s.flushSessions(ctx, kind, at, false)
}

func (s *Store) flushSessions(ctx context.Context, kind SessionKind, at time.Time, keep bool) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT guild_id, user_id, started_at_ms FROM activity_sessions WHERE kind = ?`, string(kind))
		if err != nil {
			return fmt.Errorf("query sessions: %w", err)
		}
		type open struct {
			guildID string
			userID  string
			started int64
		}
		var sessions []open
		for rows.Next() {
			var o open
			if err := rows.Scan(&o.guildID, &o.userID, &o.started); err != nil {
				rows.Close()
				return fmt.Errorf("scan session: %w", err)
			}
			sessions = append(sessions, o)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := at.UnixMilli()
		for _, o := range sessions {
			if elapsed := now - o.started; elapsed > 0 {
				if err := addCounter(ctx, tx, o.guildID, o.userID, kind.Counter(), elapsed); err != nil {
					return err
				}
			}
			if keep {
				if err := upsertSession(ctx, tx, o.guildID, o.userID, kind, at); err != nil {
					return err
				}
			}
		}
		if !keep {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM activity_sessions WHERE kind = ?`, string(kind)); err != nil {
				return fmt.Errorf("delete sessions: %w", err)
			}
		}
		n = len(sessions)
		return nil
	})
	return n, err
}

// OpenSession reports when the member's session of a kind was last seen.
func (s *Store) OpenSession(ctx context.Context, guildID, userID string, kind SessionKind) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at_ms FROM activity_sessions WHERE guild_id = ? AND user_id = ? AND kind = ?`,
		guildID, userID, string(kind),
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query session: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func accrue(ctx context.Context, tx *sql.Tx, guildID, userID string, kind SessionKind, at time.Time) (bool, error) {
	var started int64
	err := tx.QueryRowContext(ctx,
		`SELECT started_at_ms FROM activity_sessions WHERE guild_id = ? AND user_id = ? AND kind = ?`,
		guildID, userID, string(kind),
	).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query session: %w", err)
	}
	if elapsed := at.UnixMilli() - started; elapsed > 0 {
		if err := addCounter(ctx, tx, guildID, userID, kind.Counter(), elapsed); err != nil {
			return true, err
		}
	}
	return true, nil
}

func upsertSession(ctx context.Context, tx *sql.Tx, guildID, userID string, kind SessionKind, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO activity_sessions (guild_id, user_id, kind, started_at_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, kind) DO UPDATE SET started_at_ms = excluded.started_at_ms`,
		guildID, userID, string(kind), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}
