// Package catalog persists the music library: tracks, playlists, play history,
// favorites and settings. Each collection is kept in memory and written
// through to a key-value store as one JSON blob per namespace.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tunedeck/internal/metrics"
	"tunedeck/internal/notify"
	"tunedeck/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrStorageUnavailable wraps every failure of the backing store.
	ErrStorageUnavailable = errors.New("catalog storage unavailable")
	// ErrNotFound is returned by lookups for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for malformed input such as an empty playlist name.
	ErrInvalid = errors.New("invalid input")
)

// Namespace keys, one serialized collection each.
const (
	KeyTracks    = "tunedeck.tracks"
	KeyPlaylists = "tunedeck.playlists"
	KeyHistory   = "tunedeck.history"
	KeySettings  = "tunedeck.settings"
)

// HistoryLimit is the number of history entries retained.
const HistoryLimit = 1000

// Store is the key-value persistence the catalog writes through to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithMetrics attaches storage and catalog-size metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// Catalog is safe for concurrent use. Every mutating method builds the new
// collection, persists it, and only then swaps it in, so a failed write
// leaves the in-memory state unchanged.
type Catalog struct {
	store    Store
	notifier notify.Sink
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu          sync.RWMutex
	initialized bool
	loaded      map[string]bool
	tracks      []models.Track
	trackIndex  map[string]int
	playlists   []models.Playlist
	history     []models.HistoryEntry
	settings    models.Settings
}

// New creates a catalog over store. Call Init before use.
func New(store Store, notifier notify.Sink, logger *logrus.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		trackIndex: make(map[string]int),
		loaded:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init loads every namespace from the store. Namespaces load independently:
// one that fails falls back to an empty collection, is notified, and refuses
// writes until a later Init loads it, so the stored blob is never replaced
// by the fallback. Once every namespace has loaded, later calls return
// immediately.
func (c *Catalog) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	err := errors.Join(
		loadNamespace(ctx, c, KeyTracks, []models.Track(nil), c.setTracks),
		loadNamespace(ctx, c, KeyPlaylists, []models.Playlist(nil), func(p []models.Playlist) { c.playlists = p }),
		loadNamespace(ctx, c, KeyHistory, []models.HistoryEntry(nil), func(h []models.HistoryEntry) {
			if len(h) > HistoryLimit {
				h = h[:HistoryLimit]
			}
			c.history = h
		}),
		loadNamespace(ctx, c, KeySettings, models.Settings{Volume: 1.0}, func(s models.Settings) { c.settings = s }),
	)
	if err != nil {
		c.notifier.Notify(notify.Warning, "Library storage is unavailable; changes will not be saved")
		return err
	}
	c.initialized = true

	c.logger.WithFields(logrus.Fields{
		"tracks":    len(c.tracks),
		"playlists": len(c.playlists),
		"history":   len(c.history),
	}).Info("Catalog loaded")
	return nil
}

// loadNamespace loads key unless it already loaded, handing the decoded value
// to apply. On failure apply gets empty and key stays closed to writes. Must be
// called with mu held.
func loadNamespace[T any](ctx context.Context, c *Catalog, key string, empty T, apply func(T)) error {
	if c.loaded[key] {
		return nil
	}
	v := empty
	if err := c.load(ctx, key, &v); err != nil {
		apply(empty)
		return err
	}
	apply(v)
	c.loaded[key] = true
	return nil
}

// load decodes the blob under key into v. An absent key leaves v untouched.
func (c *Catalog) load(ctx context.Context, key string, v interface{}) error {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.RecordStorageError("load")
		c.logger.WithError(err).WithField("key", key).Error("Failed to load catalog namespace")
		return fmt.Errorf("%w: load %s: %w", ErrStorageUnavailable, key, err)
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.metrics.RecordStorageError("decode")
		c.logger.WithError(err).WithField("key", key).Error("Failed to decode catalog namespace")
		return fmt.Errorf("%w: decode %s: %w", ErrStorageUnavailable, key, err)
	}
	return nil
}

// save encodes v and writes it under key. A namespace that has not loaded is
// never written. Must be called with mu held.
func (c *Catalog) save(ctx context.Context, key string, v interface{}) error {
	if !c.loaded[key] {
		c.logger.WithField("key", key).Warn("Refusing to save namespace that did not load")
		c.notifier.Notify(notify.Warning, "Could not save library changes")
		return fmt.Errorf("%w: %s did not load", ErrStorageUnavailable, key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		c.metrics.RecordStorageError("save")
		c.logger.WithError(err).WithField("key", key).Error("Failed to save catalog namespace")
		c.notifier.Notify(notify.Warning, "Could not save library changes")
		return fmt.Errorf("%w: save %s: %w", ErrStorageUnavailable, key, err)
	}
	return nil
}

// setTracks swaps the track slice and rebuilds the id index. Must be called
// with mu held.
func (c *Catalog) setTracks(tracks []models.Track) {
	c.tracks = tracks
	c.trackIndex = make(map[string]int, len(tracks))
	for i, t := range tracks {
		c.trackIndex[t.ID] = i
	}
	c.metrics.SetCatalogSize(len(tracks))
}
