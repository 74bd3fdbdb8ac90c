package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"Gamarr/models"
)

const gameColumns = `id, user_id, title, catalog_id, COALESCE(cover_url, ''), COALESCE(platform, ''),
	status, release_date, COALESCE(release_status, ''), hidden, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (models.Game, error) {
	var g models.Game
	err := row.Scan(&g.ID, &g.UserID, &g.Title, &g.CatalogID, &g.CoverURL, &g.Platform,
		&g.Status, &g.ReleaseDate, &g.ReleaseStatus, &g.Hidden, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (s *Store) queryGames(ctx context.Context, query string, args ...any) ([]models.Game, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListGames returns a user's tracked games, newest first.
func (s *Store) ListGames(ctx context.Context, userID int64) ([]models.Game, error) {
	games, err := s.queryGames(ctx, "SELECT "+gameColumns+" FROM games WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

// ListWantedGames returns every visible wanted game across all users.
func (s *Store) ListWantedGames(ctx context.Context) ([]models.Game, error) {
	games, err := s.queryGames(ctx, "SELECT "+gameColumns+" FROM games WHERE status = $1 AND hidden = FALSE ORDER BY id", models.StatusWanted)
	if err != nil {
		return nil, fmt.Errorf("failed to list wanted games: %w", err)
	}
	return games, nil
}

func (s *Store) ListGamesWithCatalogID(ctx context.Context) ([]models.Game, error) {
	games, err := s.queryGames(ctx, "SELECT "+gameColumns+" FROM games WHERE catalog_id IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list games with catalog id: %w", err)
	}
	return games, nil
}

func (s *Store) CatalogIDsForUser(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT catalog_id FROM games WHERE user_id = $1 AND catalog_id IS NOT NULL", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan catalog id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// AddGames inserts games in multi-row batches and returns how many rows were
// created. Games already tracked by the same user are skipped.
func (s *Store) AddGames(ctx context.Context, games []models.NewGame) (int, error) {
	added, chunks := 0, 0
	var errs []error
	for chunk := range slices.Chunk(games, BatchSize) {
		chunks++
		args := make([]any, 0, len(chunk)*7)
		for _, g := range chunk {
			status := g.Status
			if status == "" {
				status = models.StatusWanted
			}
			args = append(args, g.UserID, g.Title, g.CatalogID, nullString(g.CoverURL), status, g.ReleaseDate, nullString(g.ReleaseStatus))
		}
		query := `INSERT INTO games (user_id, title, catalog_id, cover_url, status, release_date, release_status)
			VALUES ` + valuesList(len(chunk), 7) + `
			ON CONFLICT (user_id, catalog_id) DO NOTHING`

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	if len(errs) > 0 && len(errs) == chunks {
		return added, fmt.Errorf("failed to add games: %w", errs[0])
	}
	return added, nil
}

// UpdateReleaseInfo writes every update in a single statement.
func (s *Store) UpdateReleaseInfo(ctx context.Context, updates []models.ReleaseUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	args := make([]any, 0, len(updates)*3)
	for _, u := range updates {
		args = append(args, u.GameID, u.ReleaseDate, u.ReleaseStatus)
	}
	query := `UPDATE games SET release_date = v.release_date, release_status = v.release_status, updated_at = CURRENT_TIMESTAMP
		FROM (VALUES ` + valuesList(len(updates), 3, "bigint", "timestamptz", "text") + `) AS v(id, release_date, release_status)
		WHERE games.id = v.id`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update release info: %w", err)
	}
	return nil
}

// SetGameHidden hides or unhides a game owned by userID.
func (s *Store) SetGameHidden(ctx context.Context, userID, gameID int64, hidden bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE games SET hidden = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND user_id = $3",
		hidden, gameID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to update game: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) GetGame(ctx context.Context, userID, gameID int64) (*models.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx,
		"SELECT "+gameColumns+" FROM games WHERE id = $1 AND user_id = $2", gameID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &g, nil
}
