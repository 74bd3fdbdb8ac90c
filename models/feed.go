package models

import "time"

// Feed source statuses
const (
	FeedStatusOK    = "ok"
	FeedStatusError = "error"
)

// FeedSource is a polled RSS/Atom feed.
type FeedSource struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Enabled       bool       `json:"enabled"`
	TitleField    string     `json:"title_field,omitempty"`
	LinkField     string     `json:"link_field,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	Status        string     `json:"status,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FeedItem is a single entry ingested from a FeedSource. The catalog fields
// stay nil until the background match resolves.
type FeedItem struct {
	ID          int64      `json:"id"`
	SourceID    int64      `json:"source_id"`
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CatalogID   *int64     `json:"catalog_id,omitempty"`
	CatalogName *string    `json:"catalog_name,omitempty"`
	CoverURL    *string    `json:"cover_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewFeedItem is a normalized entry ready to be inserted.
type NewFeedItem struct {
	GUID        string
	Title       string
	Link        string
	PublishedAt *time.Time
}
