package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Settings is the per-guild record rewritten by the setup command.
type Settings struct {
	GuildID              string
	ApplicationChannelID string
	AcceptedRoleID       string
}

// GuildSettings returns empty settings (not an error) for unknown guilds.
func (s *Store) GuildSettings(ctx context.Context, guildID string) (Settings, error) {
	out := Settings{GuildID: guildID}
	err := s.db.QueryRowContext(ctx,
		`SELECT application_channel_id, accepted_role_id FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&out.ApplicationChannelID, &out.AcceptedRoleID)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("query guild settings: %w", err)
	}
	return out, nil
}

func (s *Store) SaveGuildSettings(ctx context.Context, settings Settings) error {
	if settings.GuildID == "" {
		return errors.New("save guild settings: guild id is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guild_settings (guild_id, application_channel_id, accepted_role_id, updated_at)
			VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT(guild_id) DO UPDATE SET
				application_channel_id = excluded.application_channel_id,
				accepted_role_id = excluded.accepted_role_id,
				updated_at = excluded.updated_at`,
			settings.GuildID, settings.ApplicationChannelID, settings.AcceptedRoleID,
		)
		if err != nil {
			return fmt.Errorf("upsert guild settings: %w", err)
		}
		return nil
	})
}
