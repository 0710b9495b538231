package catalog

import (
	"context"
	"time"

	"tunedeck/pkg/models"
)

// AppendHistory records a listen as the newest entry, evicts entries beyond
// HistoryLimit and recomputes the user stats.
func (c *Catalog) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.PlayedAt.IsZero() {
		entry.PlayedAt = c.now()
	}

	size := len(c.history) + 1
	if size > HistoryLimit {
		size = HistoryLimit
	}
	next := make([]models.HistoryEntry, 0, size)
	next = append(next, entry)
	next = append(next, c.history[:size-1]...)

	if err := c.save(ctx, KeyHistory, next); err != nil {
		return err
	}
	c.history = next

	// Stats are derived from history, so they follow even when the settings
	// write fails; the next append persists them again.
	settings := c.settings
	settings.Stats = c.computeStats(next)
	c.settings.Stats = settings.Stats
	return c.save(ctx, KeySettings, settings)
}

// History returns at most n entries, newest first. n <= 0 returns all.
func (c *Catalog) History(n int) []models.HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || n > len(c.history) {
		n = len(c.history)
	}
	out := make([]models.HistoryEntry, n)
	copy(out, c.history[:n])
	return out
}

// Stats returns the user stats with live track and playlist counts.
func (c *Catalog) Stats() models.UserStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.settings.Stats
	stats.TotalTracks = len(c.tracks)
	stats.TotalPlaylists = len(c.playlists)
	return stats
}

// computeStats must be called with mu held.
func (c *Catalog) computeStats(history []models.HistoryEntry) models.UserStats {
	now := c.now()
	today := dayOf(now)

	stats := models.UserStats{
		TotalTracks:    len(c.tracks),
		TotalPlaylists: len(c.playlists),
	}

	days := make(map[time.Time]bool)
	genreCount := make(map[string]int)
	var genreOrder []string

	for _, h := range history {
		stats.TotalPlaytime += h.Listened

		day := dayOf(h.PlayedAt)
		days[day] = true
		if day.Equal(today) {
			stats.PlayedToday++
		}

		if i, ok := c.trackIndex[h.TrackID]; ok {
			if genre := c.tracks[i].Genre; genre != "" {
				if genreCount[genre] == 0 {
					genreOrder = append(genreOrder, genre)
				}
				genreCount[genre]++
			}
		}
	}

	// Ties go to the genre heard most recently.
	best := 0
	for _, g := range genreOrder {
		if genreCount[g] > best {
			best = genreCount[g]
			stats.FavoriteGenre = g
		}
	}

	// A streak survives until the end of the day after the last listen.
	day := today
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}
	for days[day] {
		stats.StreakDays++
		day = day.AddDate(0, 0, -1)
	}

	return stats
}

func dayOf(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// IsFavorite reports whether id is a favorite.
func (c *Catalog) IsFavorite(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, f := range c.settings.Favorites {
		if f == id {
			return true
		}
	}
	return false
}

// Favorites returns favorite tracks in the order they were added.
func (c *Catalog) Favorites() []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.resolve(c.settings.Favorites)
}

// AddFavorite marks a track as favorite. Repeated adds and unknown tracks are
// no-ops.
func (c *Catalog) AddFavorite(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.trackIndex[id]; !ok {
		c.logger.WithField("track_id", id).Debug("Favorite of unknown track ignored")
		return nil
	}
	for _, f := range c.settings.Favorites {
		if f == id {
			return nil
		}
	}

	settings := c.settings
	settings.Favorites = append(append([]string{}, c.settings.Favorites...), id)
	if err := c.save(ctx, KeySettings, settings); err != nil {
		return err
	}
	c.settings = settings
	return nil
}

// RemoveFavorite unmarks a track. Unknown ids are a no-op.
func (c *Catalog) RemoveFavorite(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	favorites, removed := without(c.settings.Favorites, id)
	if !removed {
		return nil
	}

	settings := c.settings
	settings.Favorites = favorites
	if err := c.save(ctx, KeySettings, settings); err != nil {
		return err
	}
	c.settings = settings
	return nil
}

// Settings returns a copy of the persisted settings.
func (c *Catalog) Settings() models.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.settings
	s.Favorites = append([]string{}, c.settings.Favorites...)
	return s
}

// SavePlayerSettings persists repeat mode, shuffle and volume.
func (c *Catalog) SavePlayerSettings(ctx context.Context, repeatMode string, shuffle bool, volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings := c.settings
	settings.RepeatMode = repeatMode
	settings.Shuffle = shuffle
	settings.Volume = volume
	if err := c.save(ctx, KeySettings, settings); err != nil {
		return err
	}
	c.settings = settings
	return nil
}
