package models

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSettings holds per-user discovery preferences.
type UserSettings struct {
	UserID      int64  `json:"user_id"`
	NotifyScene bool   `json:"notify_scene"`
	NotifyP2P   bool   `json:"notify_p2p"`
	SteamID     string `json:"steam_id,omitempty"`
}

// DefaultSettings are used for users without a settings row.
func DefaultSettings(userID int64) UserSettings {
	return UserSettings{UserID: userID, NotifyScene: true, NotifyP2P: true}
}
