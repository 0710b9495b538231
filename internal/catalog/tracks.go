package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tunedeck/pkg/models"
)

// AllTracks returns every track in insertion order.
func (c *Catalog) AllTracks() []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.copyTracks()
}

// TrackByID returns a single track.
func (c *Catalog) TrackByID(id string) (models.Track, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.trackIndex[id]
	if !ok {
		return models.Track{}, fmt.Errorf("track %s: %w", id, ErrNotFound)
	}
	return c.tracks[i], nil
}

// TracksByID resolves ids in order, skipping unknown ones.
func (c *Catalog) TracksByID(ids []string) []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.resolve(ids)
}

// UpsertTrack inserts a track whose id is unseen or overwrites the existing
// one. Creation time and play statistics of an existing track are kept.
func (c *Catalog) UpsertTrack(ctx context.Context, track models.Track) error {
	_, err := c.UpsertTracks(ctx, []models.Track{track})
	return err
}

// UpsertTracks applies UpsertTrack to a batch with a single write and returns
// how many tracks were new.
func (c *Catalog) UpsertTracks(ctx context.Context, batch []models.Track) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.copyTracks()
	index := make(map[string]int, len(next))
	for i, t := range next {
		index[t.ID] = i
	}

	added := 0
	for _, track := range batch {
		if track.ID == "" {
			return 0, fmt.Errorf("track %q has no id: %w", track.Title, ErrInvalid)
		}
		if i, ok := index[track.ID]; ok {
			existing := next[i]
			track.CreatedAt = existing.CreatedAt
			track.PlayCount = existing.PlayCount
			track.LastPlayed = existing.LastPlayed
			next[i] = track
			continue
		}
		if track.CreatedAt.IsZero() {
			track.CreatedAt = c.now()
		}
		index[track.ID] = len(next)
		next = append(next, track)
		added++
	}

	if err := c.save(ctx, KeyTracks, next); err != nil {
		return 0, err
	}
	c.setTracks(next)
	return added, nil
}

// RemoveTrack deletes a track, then prunes it from playlists and favorites.
// Removing an unknown id is a no-op. The track write decides success: if a
// reference write fails afterwards, playlists keep the dangling id until
// ReconcilePlaylists, and Favorites skips it since it resolves known tracks
// only.
func (c *Catalog) RemoveTrack(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.trackIndex[id]
	if !ok {
		return nil
	}

	next := make([]models.Track, 0, len(c.tracks)-1)
	next = append(next, c.tracks[:i]...)
	next = append(next, c.tracks[i+1:]...)
	if err := c.save(ctx, KeyTracks, next); err != nil {
		return err
	}
	c.setTracks(next)

	log := c.logger.WithField("track_id", id)
	playlists, changed := c.prunePlaylists(func(trackID string) bool { return trackID != id })
	if changed {
		if err := c.save(ctx, KeyPlaylists, playlists); err != nil {
			log.WithError(err).Warn("Removed track is still listed in playlists")
		} else {
			c.playlists = playlists
		}
	}

	if favorites, removed := without(c.settings.Favorites, id); removed {
		settings := c.settings
		settings.Favorites = favorites
		if err := c.save(ctx, KeySettings, settings); err != nil {
			log.WithError(err).Warn("Removed track is still a favorite")
		} else {
			c.settings = settings
		}
	}
	return nil
}

// RecordPlay increments the play count and stamps the last-played time. An
// unknown id is logged and ignored.
func (c *Catalog) RecordPlay(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.trackIndex[id]
	if !ok {
		c.logger.WithField("track_id", id).Warn("Play recorded for unknown track")
		return nil
	}

	next := c.copyTracks()
	next[i].PlayCount++
	next[i].LastPlayed = c.now()

	if err := c.save(ctx, KeyTracks, next); err != nil {
		return err
	}
	c.setTracks(next)
	return nil
}

// RecentTracks returns at most n played tracks, most recently played first.
// Never-played tracks are excluded. Ties keep insertion order.
func (c *Catalog) RecentTracks(n int) []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	played := make([]models.Track, 0, len(c.tracks))
	for _, t := range c.tracks {
		if !t.LastPlayed.IsZero() {
			played = append(played, t)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		return played[i].LastPlayed.After(played[j].LastPlayed)
	})
	return limit(played, n)
}

// TopTracks returns at most n played tracks ordered by play count. Ties keep
// insertion order.
func (c *Catalog) TopTracks(n int) []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	played := make([]models.Track, 0, len(c.tracks))
	for _, t := range c.tracks {
		if t.PlayCount > 0 {
			played = append(played, t)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		return played[i].PlayCount > played[j].PlayCount
	})
	return limit(played, n)
}

// Search matches the query case-insensitively against title, artist, album
// and genre. A blank query returns every track. Results keep catalog order.
func (c *Catalog) Search(query string) []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.copyTracks()
	}

	results := []models.Track{}
	for _, t := range c.tracks {
		if t.Matches(q) {
			results = append(results, t)
		}
	}
	return results
}

// copyTracks must be called with mu held.
func (c *Catalog) copyTracks() []models.Track {
	out := make([]models.Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// resolve must be called with mu held.
func (c *Catalog) resolve(ids []string) []models.Track {
	out := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		if i, ok := c.trackIndex[id]; ok {
			out = append(out, c.tracks[i])
		}
	}
	return out
}

func limit(tracks []models.Track, n int) []models.Track {
	if n <= 0 {
		return []models.Track{}
	}
	if len(tracks) > n {
		return tracks[:n]
	}
	return tracks
}

// without returns ids minus every occurrence of id and whether any was removed.
func without(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out, len(out) != len(ids)
}
