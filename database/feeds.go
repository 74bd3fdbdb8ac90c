package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"Gamarr/models"
)

const feedSourceColumns = `id, user_id, name, url, enabled, COALESCE(title_field, ''), COALESCE(link_field, ''),
	last_checked_at, COALESCE(status, ''), COALESCE(last_error, ''), created_at`

const feedItemColumns = `id, source_id, guid, title, link, published_at, catalog_id, catalog_name, cover_url, created_at`

func scanFeedSource(row rowScanner) (models.FeedSource, error) {
	var f models.FeedSource
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.URL, &f.Enabled, &f.TitleField, &f.LinkField,
		&f.LastCheckedAt, &f.Status, &f.LastError, &f.CreatedAt)
	return f, err
}

func scanFeedItem(row rowScanner) (models.FeedItem, error) {
	var it models.FeedItem
	err := row.Scan(&it.ID, &it.SourceID, &it.GUID, &it.Title, &it.Link, &it.PublishedAt,
		&it.CatalogID, &it.CatalogName, &it.CoverURL, &it.CreatedAt)
	return it, err
}

func (s *Store) queryFeedSources(ctx context.Context, query string, args ...any) ([]models.FeedSource, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.FeedSource
	for rows.Next() {
		f, err := scanFeedSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, f)
	}
	return sources, rows.Err()
}

func (s *Store) ListEnabledFeedSources(ctx context.Context) ([]models.FeedSource, error) {
	sources, err := s.queryFeedSources(ctx, "SELECT "+feedSourceColumns+" FROM feed_sources WHERE enabled = TRUE ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled feed sources: %w", err)
	}
	return sources, nil
}

// ListFeedSources lists a user's feeds; userID 0 lists every feed.
func (s *Store) ListFeedSources(ctx context.Context, userID int64) ([]models.FeedSource, error) {
	query := "SELECT " + feedSourceColumns + " FROM feed_sources"
	var args []any
	if userID != 0 {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	sources, err := s.queryFeedSources(ctx, query+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed sources: %w", err)
	}
	return sources, nil
}

func (s *Store) GetFeedSource(ctx context.Context, userID, id int64) (*models.FeedSource, error) {
	f, err := scanFeedSource(s.db.QueryRowContext(ctx,
		"SELECT "+feedSourceColumns+" FROM feed_sources WHERE id = $1 AND user_id = $2", id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed source: %w", err)
	}
	return &f, nil
}

func (s *Store) CreateFeedSource(ctx context.Context, src models.FeedSource) (models.FeedSource, error) {
	created, err := scanFeedSource(s.db.QueryRowContext(ctx, `
		INSERT INTO feed_sources (user_id, name, url, enabled, title_field, link_field)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+feedSourceColumns,
		src.UserID, src.Name, src.URL, src.Enabled, nullString(src.TitleField), nullString(src.LinkField)))
	if err != nil {
		return models.FeedSource{}, fmt.Errorf("failed to create feed source: %w", err)
	}
	return created, nil
}

func (s *Store) DeleteFeedSource(ctx context.Context, userID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM feed_sources WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete feed source: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) UpdateFeedSourceStatus(ctx context.Context, sourceID int64, status, lastError string, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feed_sources SET status = $1, last_error = $2, last_checked_at = $3 WHERE id = $4",
		status, nullString(lastError), checkedAt, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update feed source status: %w", err)
	}
	return nil
}

func (s *Store) ExistingFeedGUIDs(ctx context.Context, sourceID int64, guids []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(guids) == 0 {
		return existing, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT guid FROM feed_items WHERE source_id = $1 AND guid = ANY($2)", sourceID, guids)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing guids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("failed to scan guid: %w", err)
		}
		existing[guid] = true
	}
	return existing, rows.Err()
}

// InsertFeedItems stores items with no catalog match and returns the rows
// that were created. Guids already stored for the source are ignored.
func (s *Store) InsertFeedItems(ctx context.Context, sourceID int64, items []models.NewFeedItem) ([]models.FeedItem, error) {
	var inserted []models.FeedItem
	for chunk := range slices.Chunk(items, BatchSize) {
		args := make([]any, 0, len(chunk)*5)
		for _, it := range chunk {
			args = append(args, sourceID, it.GUID, it.Title, it.Link, it.PublishedAt)
		}
		query := `INSERT INTO feed_items (source_id, guid, title, link, published_at)
			VALUES ` + valuesList(len(chunk), 5) + `
			ON CONFLICT (source_id, guid) DO NOTHING
			RETURNING ` + feedItemColumns

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert feed items: %w", err)
		}
		for rows.Next() {
			it, err := scanFeedItem(rows)
			if err != nil {
				rows.Close()
				return inserted, fmt.Errorf("failed to scan feed item: %w", err)
			}
			inserted = append(inserted, it)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert feed items: %w", err)
		}
	}
	return inserted, nil
}

func (s *Store) UpdateFeedItemMatch(ctx context.Context, itemID, catalogID int64, name, coverURL string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feed_items SET catalog_id = $1, catalog_name = $2, cover_url = $3 WHERE id = $4",
		catalogID, name, nullString(coverURL), itemID)
	if err != nil {
		return fmt.Errorf("failed to update feed item match: %w", err)
	}
	return nil
}

// ListUncheckedFeedItems returns unmatched items created before
// createdBefore that matching has never looked up, oldest first.
func (s *Store) ListUncheckedFeedItems(ctx context.Context, createdBefore time.Time, limit int) ([]models.FeedItem, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+feedItemColumns+`
		FROM feed_items
		WHERE catalog_id IS NULL AND match_checked_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unchecked feed items: %w", err)
	}
	defer rows.Close()

	var items []models.FeedItem
	for rows.Next() {
		it, err := scanFeedItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) MarkFeedItemsChecked(ctx context.Context, ids []int64, checkedAt time.Time) error {
	for chunk := range slices.Chunk(ids, BatchSize) {
		_, err := s.db.ExecContext(ctx,
			"UPDATE feed_items SET match_checked_at = $1 WHERE id = ANY($2)", checkedAt, chunk)
		if err != nil {
			return fmt.Errorf("failed to mark feed items checked: %w", err)
		}
	}
	return nil
}

// ListFeedItems returns the newest items of a user's feed.
func (s *Store) ListFeedItems(ctx context.Context, userID, sourceID int64, limit int) ([]models.FeedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fi.id, fi.source_id, fi.guid, fi.title, fi.link, fi.published_at, fi.catalog_id, fi.catalog_name, fi.cover_url, fi.created_at
		FROM feed_items fi
		JOIN feed_sources fs ON fs.id = fi.source_id
		WHERE fi.source_id = $1 AND fs.user_id = $2
		ORDER BY COALESCE(fi.published_at, fi.created_at) DESC
		LIMIT $3`, sourceID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed items: %w", err)
	}
	defer rows.Close()

	var items []models.FeedItem
	for rows.Next() {
		it, err := scanFeedItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
