package models

import (
	"strings"
	"time"
)

// Placeholder values used when a tag is missing.
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// Track represents a music track in the catalog
type Track struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album"`
	Genre       string    `json:"genre,omitempty"`
	Year        int       `json:"year,omitempty"`
	TrackNumber int       `json:"trackNumber,omitempty"`
	Duration    int       `json:"duration"` // in seconds
	FileSize    int64     `json:"fileSize"`
	Locator     string    `json:"locator"`             // file path or URL of the source
	ArtworkID   string    `json:"artworkId,omitempty"` // key into the artwork cache
	PlayCount   int       `json:"playCount"`
	LastPlayed  time.Time `json:"lastPlayed,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasArtwork reports whether the track carries embedded artwork
func (t *Track) HasArtwork() bool {
	return t.ArtworkID != ""
}

// Matches reports whether the lower-cased query is a substring of the title,
// artist, album or genre. An empty genre never matches.
func (t *Track) Matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(t.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(t.Artist), lowerQuery) ||
		strings.Contains(strings.ToLower(t.Album), lowerQuery) {
		return true
	}
	return t.Genre != "" && strings.Contains(strings.ToLower(t.Genre), lowerQuery)
}
