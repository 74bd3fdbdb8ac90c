package models

import "time"

// Notification types
const (
	NotificationSceneRelease = "scene_release"
	NotificationReleased     = "game_released"
	NotificationWishlist     = "wishlist_sync"
)

// Notification is a message delivered to a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	GameID    *int64    `json:"game_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotifiedRelease is the dedup ledger entry for a (game, release) pair.
type NotifiedRelease struct {
	GameID    int64     `json:"game_id"`
	ReleaseID string    `json:"release_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
