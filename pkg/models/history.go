package models

import "time"

// HistoryEntry records a single listen
type HistoryEntry struct {
	TrackID   string    `json:"trackId"`
	PlayedAt  time.Time `json:"playedAt"`
	Listened  int       `json:"listened"` // seconds actually listened
	Completed bool      `json:"completed"`
}

// UserStats is derived from the catalog and the play history
type UserStats struct {
	TotalTracks    int    `json:"totalTracks"`
	TotalPlaytime  int    `json:"totalPlaytime"` // seconds
	TotalPlaylists int    `json:"totalPlaylists"`
	FavoriteGenre  string `json:"favoriteGenre,omitempty"`
	StreakDays     int    `json:"streakDays"`
	PlayedToday    int    `json:"playedToday"`
}

// Settings holds favorites, cached stats and player preferences
type Settings struct {
	Favorites  []string  `json:"favorites"`
	Stats      UserStats `json:"stats"`
	RepeatMode string    `json:"repeatMode,omitempty"`
	Shuffle    bool      `json:"shuffle"`
	Volume     float64   `json:"volume"`
}
