// Package library is the facade the HTTP layer drives: scanning, playback
// through the queue, and the user actions that touch the catalog.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tunedeck/internal/metrics"
	"tunedeck/internal/notify"
	"tunedeck/internal/player"
	"tunedeck/internal/queue"
	"tunedeck/internal/scanner"
	"tunedeck/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrScanInProgress is returned when a scan is requested while one runs.
	ErrScanInProgress = errors.New("a scan is already running")
	// ErrNothingToPlay is returned when the requested context has no tracks.
	ErrNothingToPlay = errors.New("nothing to play")
)

// Catalog is the subset of the catalog store the facade uses.
type Catalog interface {
	AllTracks() []models.Track
	TrackByID(id string) (models.Track, error)
	TracksByID(ids []string) []models.Track
	PlaylistTracks(id string) ([]models.Track, error)
	UpsertTracks(ctx context.Context, batch []models.Track) (int, error)
	ReconcilePlaylists(ctx context.Context) (int, error)
	RecordPlay(ctx context.Context, id string) error
	AppendHistory(ctx context.Context, entry models.HistoryEntry) error
	Search(query string) []models.Track
	IsFavorite(id string) bool
	AddFavorite(ctx context.Context, id string) error
	RemoveFavorite(ctx context.Context, id string) error
	Settings() models.Settings
	SavePlayerSettings(ctx context.Context, repeatMode string, shuffle bool, volume float64) error
}

// Discoverer finds tracks. *scanner.Scanner implements it.
type Discoverer interface {
	Discover(ctx context.Context, progress scanner.ProgressFunc) (*scanner.Result, error)
}

// ScanSummary describes a finished scan.
type ScanSummary struct {
	Found      int            `json:"found"`
	Added      int            `json:"added"`
	Skipped    map[string]int `json:"skipped"`
	Pruned     int            `json:"pruned"`
	Incomplete bool           `json:"incomplete"`
	Duration   time.Duration  `json:"duration"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Option configures a Library.
type Option func(*Library)

// WithQueue replaces the default queue, e.g. one with a fixed random source.
func WithQueue(q *queue.Queue) Option {
	return func(l *Library) { l.queue = q }
}

// WithMetrics counts plays.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Library) { l.metrics = m }
}

// Library coordinates the catalog, scanner, queue and player state. It is
// safe for concurrent use.
type Library struct {
	catalog  Catalog
	scanner  Discoverer
	notifier notify.Sink
	player   *player.StateManager
	metrics  *metrics.Metrics
	logger   *logrus.Logger

	scanning atomic.Bool

	mu       sync.Mutex
	queue    *queue.Queue
	repeat   queue.RepeatMode
	shuffle  bool
	volume   float64
	lastScan *ScanSummary
}

// New creates the facade. Repeat, shuffle and volume are restored from the
// catalog settings, so the catalog should be initialized first.
func New(cat Catalog, scn Discoverer, notifier notify.Sink, state *player.StateManager, logger *logrus.Logger, opts ...Option) *Library {
	l := &Library{
		catalog:  cat,
		scanner:  scn,
		notifier: notifier,
		player:   state,
		logger:   logger,
		queue:    queue.New(),
		repeat:   queue.RepeatNone,
		volume:   1.0,
	}
	for _, opt := range opts {
		opt(l)
	}

	settings := cat.Settings()
	if mode, err := queue.ParseRepeatMode(settings.RepeatMode); err == nil {
		l.repeat = mode
	}
	l.shuffle = settings.Shuffle
	if settings.Volume > 0 {
		l.volume = settings.Volume
	}
	l.player.UpdateSettings(l.shuffle, string(l.repeat))
	l.player.UpdateVolume(l.volume, false)
	return l
}

// Player exposes the player state for subscribers.
func (l *Library) Player() *player.StateManager {
	return l.player
}

// Scanning reports whether a scan is running.
func (l *Library) Scanning() bool {
	return l.scanning.Load()
}

// LastScan returns the summary of the most recent scan, if any.
func (l *Library) LastScan() (ScanSummary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastScan == nil {
		return ScanSummary{}, false
	}
	return *l.lastScan, true
}

// ScanFunc runs a scan whose slot has already been claimed.
type ScanFunc func(ctx context.Context, progress scanner.ProgressFunc) (ScanSummary, error)

// TryBeginScan claims the scan slot. It reports false when a scan is already
// running. The returned function runs the scan and releases the slot; call it
// exactly once.
func (l *Library) TryBeginScan() (ScanFunc, bool) {
	if !l.scanning.CompareAndSwap(false, true) {
		return nil, false
	}
	return func(ctx context.Context, progress scanner.ProgressFunc) (ScanSummary, error) {
		defer l.scanning.Store(false)
		return l.scan(ctx, progress)
	}, true
}

// Scan discovers tracks, stores them in one batch and drops playlist entries
// that no longer resolve. A cancelled scan still stores what it read.
func (l *Library) Scan(ctx context.Context, progress scanner.ProgressFunc) (ScanSummary, error) {
	run, ok := l.TryBeginScan()
	if !ok {
		return ScanSummary{}, ErrScanInProgress
	}
	return run(ctx, progress)
}

func (l *Library) scan(ctx context.Context, progress scanner.ProgressFunc) (ScanSummary, error) {
	res, err := l.scanner.Discover(ctx, progress)
	if res == nil {
		if errors.Is(err, scanner.ErrUnsupported) {
			l.notifier.Notify(notify.Error, "This device does not allow access to music files")
		} else {
			notify.Notifyf(l.notifier, notify.Error, "Library scan failed: %v", err)
		}
		return ScanSummary{}, fmt.Errorf("scan: %w", err)
	}

	summary := ScanSummary{
		Found:      len(res.Tracks),
		Skipped:    res.Skipped,
		Incomplete: res.Incomplete,
		Duration:   res.Duration,
	}

	// Partial results are kept even when the caller has gone away.
	storeCtx := context.WithoutCancel(ctx)
	added, upErr := l.catalog.UpsertTracks(storeCtx, res.Tracks)
	if upErr != nil {
		l.logger.WithError(upErr).Error("Failed to store scanned tracks")
		return summary, upErr
	}
	summary.Added = added

	pruned, recErr := l.catalog.ReconcilePlaylists(storeCtx)
	if recErr != nil {
		l.logger.WithError(recErr).Warn("Failed to reconcile playlists")
	}
	summary.Pruned = pruned
	summary.FinishedAt = time.Now()

	l.mu.Lock()
	l.lastScan = &summary
	l.mu.Unlock()

	skipped := res.SkippedTotal()
	switch {
	case res.Incomplete:
		notify.Notifyf(l.notifier, notify.Warning, "Scan stopped early: %d tracks found, %d new", summary.Found, added)
	case skipped > 0:
		notify.Notifyf(l.notifier, notify.Info, "Scan complete: %d tracks found, %d new, %d files skipped", summary.Found, added, skipped)
	default:
		notify.Notifyf(l.notifier, notify.Info, "Scan complete: %d tracks found, %d new", summary.Found, added)
	}

	l.logger.WithFields(logrus.Fields{
		"found":   summary.Found,
		"added":   added,
		"skipped": skipped,
		"pruned":  pruned,
	}).Info("Library updated")

	return summary, err
}

// Search returns tracks matching query.
func (l *Library) Search(query string) []models.Track {
	return l.catalog.Search(query)
}

// ToggleFavorite flips the favorite flag of a track and returns the new value.
func (l *Library) ToggleFavorite(ctx context.Context, trackID string) (bool, error) {
	if l.catalog.IsFavorite(trackID) {
		if err := l.catalog.RemoveFavorite(ctx, trackID); err != nil {
			return true, err
		}
		return false, nil
	}

	if _, err := l.catalog.TrackByID(trackID); err != nil {
		return false, err
	}
	if err := l.catalog.AddFavorite(ctx, trackID); err != nil {
		return false, err
	}
	return true, nil
}
