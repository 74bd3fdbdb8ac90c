package models

import "time"

// Game statuses
const (
	StatusWanted      = "wanted"
	StatusDownloading = "downloading"
	StatusOwned       = "owned"
	StatusCompleted   = "completed"
)

// Release statuses
const (
	ReleaseUpcoming = "upcoming"
	ReleaseReleased = "released"
)

// Game is a tracked item in a user's collection.
type Game struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Title         string     `json:"title"`
	CatalogID     *int64     `json:"catalog_id,omitempty"`
	CoverURL      string     `json:"cover_url,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	Status        string     `json:"status"`
	ReleaseDate   *time.Time `json:"release_date,omitempty"`
	ReleaseStatus string     `json:"release_status,omitempty"`
	Hidden        bool       `json:"hidden"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewGame holds the fields needed to insert a tracked item.
type NewGame struct {
	UserID        int64
	Title         string
	CatalogID     int64
	CoverURL      string
	Status        string
	ReleaseDate   *time.Time
	ReleaseStatus string
}

// ReleaseUpdate is one row of a batched release status write.
type ReleaseUpdate struct {
	GameID        int64
	ReleaseDate   *time.Time
	ReleaseStatus string
}
