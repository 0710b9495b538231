package catalog

import (
	"context"
	"fmt"
	"strings"

	"tunedeck/pkg/models"

	"github.com/google/uuid"
)

// PlaylistUpdate carries the fields to change; nil fields are left alone.
type PlaylistUpdate struct {
	Name        *string
	Description *string
	Color       *string
	Criteria    *models.SmartCriteria
}

// Playlists returns every playlist in creation order.
func (c *Catalog) Playlists() []models.Playlist {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.copyPlaylists()
}

// PlaylistByID returns a single playlist.
func (c *Catalog) PlaylistByID(id string) (models.Playlist, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.playlistIndex(id)
	if i < 0 {
		return models.Playlist{}, fmt.Errorf("playlist %s: %w", id, ErrNotFound)
	}
	return clonePlaylist(c.playlists[i]), nil
}

// PlaylistTracks resolves a playlist's members. Smart playlists are evaluated
// against the current catalog; regular ones keep their stored order.
func (c *Catalog) PlaylistTracks(id string) ([]models.Track, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.playlistIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("playlist %s: %w", id, ErrNotFound)
	}

	p := c.playlists[i]
	if !p.Smart {
		return c.resolve(p.TrackIDs), nil
	}

	criteria := models.SmartCriteria{}
	if p.Criteria != nil {
		criteria = *p.Criteria
	}
	out := []models.Track{}
	for _, t := range c.tracks {
		if criteria.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreatePlaylist stores a new playlist and returns it with its id and
// timestamps filled in. Track ids not present in the catalog are dropped.
func (c *Catalog) CreatePlaylist(ctx context.Context, p models.Playlist) (models.Playlist, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.Playlist{}, fmt.Errorf("playlist name is required: %w", ErrInvalid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if c.playlistIndex(p.ID) >= 0 {
		return models.Playlist{}, fmt.Errorf("playlist %s already exists: %w", p.ID, ErrInvalid)
	}

	now := c.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	ids := make([]string, 0, len(p.TrackIDs))
	if !p.Smart {
		for _, id := range p.TrackIDs {
			if _, ok := c.trackIndex[id]; ok {
				ids = append(ids, id)
			}
		}
	} else if p.Criteria == nil {
		p.Criteria = &models.SmartCriteria{}
	}
	p.TrackIDs = ids

	next := append(c.copyPlaylists(), p)
	if err := c.save(ctx, KeyPlaylists, next); err != nil {
		return models.Playlist{}, err
	}
	c.playlists = next
	return clonePlaylist(p), nil
}

// UpdatePlaylist changes playlist metadata or smart criteria.
func (c *Catalog) UpdatePlaylist(ctx context.Context, id string, upd PlaylistUpdate) (models.Playlist, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.playlistIndex(id)
	if i < 0 {
		return models.Playlist{}, fmt.Errorf("playlist %s: %w", id, ErrNotFound)
	}

	next := c.copyPlaylists()
	p := &next[i]
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.Playlist{}, fmt.Errorf("playlist name is required: %w", ErrInvalid)
		}
		p.Name = name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Color != nil {
		p.Color = *upd.Color
	}
	if upd.Criteria != nil && p.Smart {
		criteria := *upd.Criteria
		p.Criteria = &criteria
	}
	p.UpdatedAt = c.now()

	if err := c.save(ctx, KeyPlaylists, next); err != nil {
		return models.Playlist{}, err
	}
	c.playlists = next
	return clonePlaylist(next[i]), nil
}

// DeletePlaylist removes a playlist. Unknown ids are a no-op.
func (c *Catalog) DeletePlaylist(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.playlistIndex(id)
	if i < 0 {
		return nil
	}

	next := make([]models.Playlist, 0, len(c.playlists)-1)
	for j, p := range c.playlists {
		if j != i {
			next = append(next, clonePlaylist(p))
		}
	}
	if err := c.save(ctx, KeyPlaylists, next); err != nil {
		return err
	}
	c.playlists = next
	return nil
}

// AddTrackToPlaylist appends trackID unless it is already a member. Unknown
// playlists or tracks, and smart playlists, are left unchanged.
func (c *Catalog) AddTrackToPlaylist(ctx context.Context, id, trackID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.playlistIndex(id)
	if i < 0 {
		c.logger.WithField("playlist_id", id).Debug("Add to unknown playlist ignored")
		return nil
	}
	if _, ok := c.trackIndex[trackID]; !ok {
		c.logger.WithField("track_id", trackID).Debug("Add of unknown track ignored")
		return nil
	}
	if c.playlists[i].Smart || c.playlists[i].Contains(trackID) {
		return nil
	}

	next := c.copyPlaylists()
	next[i].TrackIDs = append(next[i].TrackIDs, trackID)
	next[i].UpdatedAt = c.now()

	if err := c.save(ctx, KeyPlaylists, next); err != nil {
		return err
	}
	c.playlists = next
	return nil
}

// RemoveTrackFromPlaylist drops every occurrence of trackID.
func (c *Catalog) RemoveTrackFromPlaylist(ctx context.Context, id, trackID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.playlistIndex(id)
	if i < 0 {
		return nil
	}
	ids, removed := without(c.playlists[i].TrackIDs, trackID)
	if !removed {
		return nil
	}

	next := c.copyPlaylists()
	next[i].TrackIDs = ids
	next[i].UpdatedAt = c.now()

	if err := c.save(ctx, KeyPlaylists, next); err != nil {
		return err
	}
	c.playlists = next
	return nil
}

// ReconcilePlaylists removes ids that no longer exist in the catalog and
// returns how many references were dropped.
func (c *Catalog) ReconcilePlaylists(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := 0
	for _, p := range c.playlists {
		before += len(p.TrackIDs)
	}

	next, changed := c.prunePlaylists(func(trackID string) bool {
		_, ok := c.trackIndex[trackID]
		return ok
	})
	if !changed {
		return 0, nil
	}

	after := 0
	for _, p := range next {
		after += len(p.TrackIDs)
	}

	if err := c.save(ctx, KeyPlaylists, next); err != nil {
		return 0, err
	}
	c.playlists = next
	return before - after, nil
}

// prunePlaylists returns copies of the playlists keeping only ids for which
// keep is true. Must be called with mu held.
func (c *Catalog) prunePlaylists(keep func(trackID string) bool) ([]models.Playlist, bool) {
	next := c.copyPlaylists()
	changed := false
	for i := range next {
		ids := next[i].TrackIDs[:0]
		for _, id := range next[i].TrackIDs {
			if keep(id) {
				ids = append(ids, id)
			}
		}
		if len(ids) != len(next[i].TrackIDs) {
			next[i].TrackIDs = ids
			next[i].UpdatedAt = c.now()
			changed = true
		}
	}
	return next, changed
}

// playlistIndex must be called with mu held.
func (c *Catalog) playlistIndex(id string) int {
	for i, p := range c.playlists {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// copyPlaylists must be called with mu held.
func (c *Catalog) copyPlaylists() []models.Playlist {
	out := make([]models.Playlist, len(c.playlists))
	for i, p := range c.playlists {
		out[i] = clonePlaylist(p)
	}
	return out
}

func clonePlaylist(p models.Playlist) models.Playlist {
	ids := make([]string, len(p.TrackIDs))
	copy(ids, p.TrackIDs)
	p.TrackIDs = ids
	if p.Criteria != nil {
		criteria := *p.Criteria
		p.Criteria = &criteria
	}
	return p
}
