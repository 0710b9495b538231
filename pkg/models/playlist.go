package models

import (
	"strings"
	"time"
)

// Playlist represents a user-created playlist. When Smart is set, membership
// is computed from Criteria and TrackIDs is ignored.
type Playlist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Color       string         `json:"color,omitempty"`
	TrackIDs    []string       `json:"trackIds"`
	Smart       bool           `json:"smart,omitempty"`
	Criteria    *SmartCriteria `json:"criteria,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Contains reports whether trackID is an explicit member of the playlist
func (p *Playlist) Contains(trackID string) bool {
	for _, id := range p.TrackIDs {
		if id == trackID {
			return true
		}
	}
	return false
}

// SmartCriteria filters the catalog for smart playlists. Zero values disable
// the corresponding filter.
type SmartCriteria struct {
	Genres       []string  `json:"genres,omitempty"`
	Artists      []string  `json:"artists,omitempty"`
	MinDuration  int       `json:"minDuration,omitempty"` // seconds
	MaxDuration  int       `json:"maxDuration,omitempty"` // seconds
	AddedAfter   time.Time `json:"addedAfter,omitempty"`
	MinPlayCount int       `json:"minPlayCount,omitempty"`
}

// Match reports whether the track satisfies every configured filter
func (c *SmartCriteria) Match(t Track) bool {
	if len(c.Genres) > 0 && !containsFold(c.Genres, t.Genre) {
		return false
	}
	if len(c.Artists) > 0 && !containsFold(c.Artists, t.Artist) {
		return false
	}
	if c.MinDuration > 0 && t.Duration < c.MinDuration {
		return false
	}
	if c.MaxDuration > 0 && t.Duration > c.MaxDuration {
		return false
	}
	if !c.AddedAfter.IsZero() && !t.CreatedAt.After(c.AddedAfter) {
		return false
	}
	if c.MinPlayCount > 0 && t.PlayCount < c.MinPlayCount {
		return false
	}
	return true
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
