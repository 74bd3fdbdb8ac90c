package database

import (
	"context"
	"database/sql"
	"fmt"

	"Gamarr/models"
)

// EnsureUser returns the id of username, creating the user when missing.
func (s *Store) EnsureUser(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id`, username).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure user: %w", err)
	}
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, "SELECT id, username, created_at FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUserSettings falls back to the defaults when the user has no row.
func (s *Store) GetUserSettings(ctx context.Context, userID int64) (models.UserSettings, error) {
	settings := models.DefaultSettings(userID)
	err := s.db.QueryRowContext(ctx,
		"SELECT notify_scene, notify_p2p, COALESCE(steam_id, '') FROM user_settings WHERE user_id = $1", userID).
		Scan(&settings.NotifyScene, &settings.NotifyP2P, &settings.SteamID)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to get user settings: %w", err)
	}
	return settings, nil
}

// SettingsForUsers returns settings for every id, defaults included.
func (s *Store) SettingsForUsers(ctx context.Context, userIDs []int64) (map[int64]models.UserSettings, error) {
	out := make(map[int64]models.UserSettings, len(userIDs))
	for _, id := range userIDs {
		out[id] = models.DefaultSettings(id)
	}
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, notify_scene, notify_p2p, COALESCE(steam_id, '') FROM user_settings WHERE user_id = ANY($1)", userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load user settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.UserSettings
		if err := rows.Scan(&st.UserID, &st.NotifyScene, &st.NotifyP2P, &st.SteamID); err != nil {
			return nil, fmt.Errorf("failed to scan user settings: %w", err)
		}
		out[st.UserID] = st
	}
	return out, rows.Err()
}

func (s *Store) SaveUserSettings(ctx context.Context, st models.UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, notify_scene, notify_p2p, steam_id, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			notify_scene = EXCLUDED.notify_scene,
			notify_p2p = EXCLUDED.notify_p2p,
			steam_id = EXCLUDED.steam_id,
			updated_at = CURRENT_TIMESTAMP`,
		st.UserID, st.NotifyScene, st.NotifyP2P, nullString(st.SteamID))
	if err != nil {
		return fmt.Errorf("failed to save user settings: %w", err)
	}
	return nil
}

func (s *Store) UsersWithSteamID(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM user_settings WHERE steam_id IS NOT NULL AND steam_id <> '' ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users with steam ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
