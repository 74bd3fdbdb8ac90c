package database

import (
	"context"
	"fmt"

	"Gamarr/models"
)

func (s *Store) ExistingNotifiedReleases(ctx context.Context, gameIDs []int64) ([]models.NotifiedRelease, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT game_id, release_id, source, created_at FROM notified_releases WHERE game_id = ANY($1)", gameIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load notified releases: %w", err)
	}
	defer rows.Close()

	var out []models.NotifiedRelease
	for rows.Next() {
		var nr models.NotifiedRelease
		if err := rows.Scan(&nr.GameID, &nr.ReleaseID, &nr.Source, &nr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notified release: %w", err)
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}

// RecordNotifiedReleases inserts the ledger rows in one statement and returns
// only the pairs that were not recorded before, so each (game, release) pair
// is claimed by exactly one caller.
func (s *Store) RecordNotifiedReleases(ctx context.Context, records []models.NotifiedRelease) ([]models.NotifiedRelease, error) {
	if len(records) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(records)*3)
	for _, r := range records {
		args = append(args, r.GameID, r.ReleaseID, r.Source)
	}
	query := `INSERT INTO notified_releases (game_id, release_id, source)
		VALUES ` + valuesList(len(records), 3) + `
		ON CONFLICT (game_id, release_id) DO NOTHING
		RETURNING game_id, release_id, source, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to record notified releases: %w", err)
	}
	defer rows.Close()

	var inserted []models.NotifiedRelease
	for rows.Next() {
		var nr models.NotifiedRelease
		if err := rows.Scan(&nr.GameID, &nr.ReleaseID, &nr.Source, &nr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notified release: %w", err)
		}
		inserted = append(inserted, nr)
	}
	return inserted, rows.Err()
}

func (s *Store) InsertNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	args := make([]any, 0, len(notifications)*7)
	for _, n := range notifications {
		args = append(args, n.ID, n.UserID, n.Type, n.Title, n.Message, n.GameID, n.CreatedAt)
	}
	query := `INSERT INTO notifications (id, user_id, type, title, message, game_id, created_at)
		VALUES ` + valuesList(len(notifications), 7)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, COALESCE(message, ''), game_id, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.GameID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID int64, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
