package library

import (
	"context"
	"fmt"

	"tunedeck/internal/catalog"
	"tunedeck/internal/queue"
	"tunedeck/pkg/models"

	"github.com/sirupsen/logrus"
)

// QueueState describes the queue for the API.
type QueueState struct {
	Tracks   []models.Track `json:"tracks"`
	Position int            `json:"position"`
	Total    int            `json:"total"`
}

// Play queues contextIDs (the whole library when empty) and starts trackID.
func (l *Library) Play(ctx context.Context, trackID string, contextIDs []string) (models.Track, error) {
	var tracks []models.Track
	if len(contextIDs) > 0 {
		tracks = l.catalog.TracksByID(contextIDs)
	} else {
		tracks = l.catalog.AllTracks()
	}

	index := -1
	for i, t := range tracks {
		if t.ID == trackID {
			index = i
			break
		}
	}
	if index < 0 {
		return models.Track{}, fmt.Errorf("track %s: %w", trackID, catalog.ErrNotFound)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.leaveCurrent(ctx)
	l.queue.SetQueue(tracks, index)
	track, _ := l.queue.Current()
	l.start(ctx, track)
	return track, nil
}

// PlayPlaylist queues a playlist and starts at position start.
func (l *Library) PlayPlaylist(ctx context.Context, playlistID string, start int) (models.Track, error) {
	tracks, err := l.catalog.PlaylistTracks(playlistID)
	if err != nil {
		return models.Track{}, err
	}
	if len(tracks) == 0 {
		return models.Track{}, fmt.Errorf("playlist %s: %w", playlistID, ErrNothingToPlay)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.leaveCurrent(ctx)
	l.queue.SetQueue(tracks, start)
	track, _ := l.queue.Current()
	l.start(ctx, track)
	return track, nil
}

// Next skips to the next track under the current repeat and shuffle
// settings. At the end of the queue nothing changes and ok is false.
func (l *Library) Next(ctx context.Context) (models.Track, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.queue.Current(); !ok {
		return models.Track{}, false
	}
	listened := l.player.GetState().CurrentTime

	track, ok := l.queue.Next(l.repeat, l.shuffle)
	if !ok {
		return models.Track{}, false
	}
	l.recordSkip(ctx, listened)
	l.start(ctx, track)
	return track, true
}

// Previous goes back one track, wrapping to the end of the queue.
func (l *Library) Previous(ctx context.Context) (models.Track, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.queue.Current(); !ok {
		return models.Track{}, false
	}
	listened := l.player.GetState().CurrentTime

	track, ok := l.queue.Previous(l.shuffle)
	if !ok {
		return models.Track{}, false
	}
	l.recordSkip(ctx, listened)
	l.start(ctx, track)
	return track, true
}

// TrackEnded records a completed listen of the current track and moves on.
// Repeat one replays the same track; the end of the queue stops the player.
func (l *Library) TrackEnded(ctx context.Context, listened int) (models.Track, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.queue.Current()
	if !ok {
		return models.Track{}, false
	}
	if listened <= 0 {
		listened = current.Duration
	}
	l.appendHistory(ctx, models.HistoryEntry{TrackID: current.ID, Listened: listened, Completed: true})

	if l.repeat == queue.RepeatOne {
		l.start(ctx, current)
		return current, true
	}

	next, ok := l.queue.Next(l.repeat, l.shuffle)
	if !ok {
		l.player.Stop()
		return models.Track{}, false
	}
	l.start(ctx, next)
	return next, true
}

// SetRepeat changes and persists the repeat mode.
func (l *Library) SetRepeat(ctx context.Context, mode string) error {
	parsed, err := queue.ParseRepeatMode(mode)
	if err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrInvalid, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.repeat = parsed
	l.player.UpdateSettings(l.shuffle, string(l.repeat))
	return l.saveSettings(ctx)
}

// SetShuffle changes and persists shuffle.
func (l *Library) SetShuffle(ctx context.Context, shuffle bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.shuffle = shuffle
	l.player.UpdateSettings(l.shuffle, string(l.repeat))
	return l.saveSettings(ctx)
}

// SetVolume changes and persists the volume, clamped to [0, 1].
func (l *Library) SetVolume(ctx context.Context, volume float64, muted bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.player.UpdateVolume(volume, muted)
	l.volume = l.player.GetState().Volume
	return l.saveSettings(ctx)
}

// Queue returns the queued tracks and the 1-based position of the cursor.
func (l *Library) Queue() QueueState {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, total := l.queue.Position()
	return QueueState{Tracks: l.queue.Tracks(), Position: pos, Total: total}
}

// start makes track the now-playing one. Storage failures are already
// surfaced by the catalog and never stop playback. Must be called with mu held.
func (l *Library) start(ctx context.Context, track models.Track) {
	if err := l.catalog.RecordPlay(ctx, track.ID); err != nil {
		l.logger.WithError(err).WithField("track_id", track.ID).Warn("Play count not saved")
	}
	l.metrics.RecordPlay()

	pos, total := l.queue.Position()
	l.player.SetNowPlaying(track, pos, total)
	l.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"title":    track.Title,
		"position": pos,
		"total":    total,
	}).Debug("Now playing")
}

// leaveCurrent records a partial listen of the track being replaced. Must be
// called with mu held.
func (l *Library) leaveCurrent(ctx context.Context) {
	if _, ok := l.queue.Current(); !ok {
		return
	}
	l.recordSkip(ctx, l.player.GetState().CurrentTime)
}

// recordSkip appends an incomplete history entry for the current track when
// any of it was heard. The player still holds the track being left, so this
// runs before start. Must be called with mu held.
func (l *Library) recordSkip(ctx context.Context, listened int) {
	state := l.player.GetState()
	if listened <= 0 || state.Track == nil {
		return
	}
	l.appendHistory(ctx, models.HistoryEntry{TrackID: state.Track.ID, Listened: listened})
}

func (l *Library) appendHistory(ctx context.Context, entry models.HistoryEntry) {
	if err := l.catalog.AppendHistory(ctx, entry); err != nil {
		l.logger.WithError(err).WithField("track_id", entry.TrackID).Warn("History entry not saved")
	}
}

// saveSettings must be called with mu held.
func (l *Library) saveSettings(ctx context.Context) error {
	return l.catalog.SavePlayerSettings(ctx, string(l.repeat), l.shuffle, l.volume)
}
