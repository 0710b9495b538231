package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tunedeck/internal/cache"
	"tunedeck/internal/catalog"
	"tunedeck/internal/config"
	"tunedeck/internal/library"
	"tunedeck/internal/metadata"
	"tunedeck/internal/metrics"
	"tunedeck/internal/notify"
	"tunedeck/internal/scanner"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PublicURLer reports the externally reachable address, if any.
type PublicURLer interface {
	PublicURL() string
}

// Deps holds the collaborators the server is built from.
type Deps struct {
	Library   *library.Library
	Catalog   *catalog.Catalog
	Extractor *metadata.Extractor
	Artwork   *cache.ArtworkCache
	Notices   *notify.Feed
	Notifier  notify.Sink
	Metrics   *metrics.Metrics
	Store     Pinger
	Tunnel    PublicURLer
	Logger    *logrus.Logger
}

// MusicServer represents the main music streaming server
type MusicServer struct {
	config    *config.Config
	library   *library.Library
	catalog   *catalog.Catalog
	extractor *metadata.Extractor
	artwork   *cache.ArtworkCache
	notices   *notify.Feed
	notifier  notify.Sink
	metrics   *metrics.Metrics
	store     Pinger
	tunnel    PublicURLer
	logger    *logrus.Logger

	mux        *http.ServeMux
	httpServer *http.Server
	watcher    *fsnotify.Watcher
	scheduler  *cron.Cron
	expensive  *rate.Limiter

	// baseCtx outlives requests; background scans run under it.
	baseCtx context.Context

	progressMu sync.Mutex
	progress   scanner.Progress
}

// NewMusicServer creates a new music server instance
func NewMusicServer(cfg *config.Config, deps Deps) *MusicServer {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	ms := &MusicServer{
		config:    cfg,
		library:   deps.Library,
		catalog:   deps.Catalog,
		extractor: deps.Extractor,
		artwork:   deps.Artwork,
		notices:   deps.Notices,
		notifier:  notifier,
		metrics:   deps.Metrics,
		store:     deps.Store,
		tunnel:    deps.Tunnel,
		logger:    deps.Logger,
		mux:       http.NewServeMux(),
		expensive: newExpensiveLimiter(),
		baseCtx:   context.Background(),
	}
	ms.setupRoutes()
	return ms
}

// Handler returns the routed handler wrapped in the middleware chain.
func (ms *MusicServer) Handler() http.Handler {
	var h http.Handler = ms.mux
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	return ms.panicRecoveryMiddleware(h)
}

// ScanMusicLibrary runs a library scan and keeps its progress for the API.
func (ms *MusicServer) ScanMusicLibrary(ctx context.Context) (library.ScanSummary, error) {
	run, ok := ms.library.TryBeginScan()
	if !ok {
		ms.logger.Debug("Scan already running")
		return library.ScanSummary{}, library.ErrScanInProgress
	}
	return ms.runScan(ctx, run)
}

// runScan runs a scan whose slot the caller already claimed.
func (ms *MusicServer) runScan(ctx context.Context, run library.ScanFunc) (library.ScanSummary, error) {
	ms.logger.WithField("provider", ms.config.Music.Provider).Info("Scanning music library")

	summary, err := run(ctx, ms.setProgress)
	if err != nil {
		ms.logger.WithError(err).Warn("Library scan finished with errors")
		return summary, err
	}

	ms.logger.WithFields(logrus.Fields{
		"found":    summary.Found,
		"added":    summary.Added,
		"duration": summary.Duration.Round(time.Millisecond),
	}).Info("Library scan complete")
	return summary, nil
}

func (ms *MusicServer) setProgress(p scanner.Progress) {
	ms.progressMu.Lock()
	ms.progress = p
	ms.progressMu.Unlock()
}

func (ms *MusicServer) scanProgress() scanner.Progress {
	ms.progressMu.Lock()
	defer ms.progressMu.Unlock()
	return ms.progress
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (ms *MusicServer) Start(ctx context.Context) error {
	ms.baseCtx = ctx

	if ms.config.Music.WatchForChanges && ms.config.Music.Provider == "directory" {
		if err := ms.startFileWatcher(); err != nil {
			ms.logger.WithError(err).Warn("Could not start file watcher")
		}
	}

	if ms.config.Music.RescanSchedule != "" {
		if err := ms.startScheduler(ms.config.Music.RescanSchedule); err != nil {
			ms.logger.WithError(err).Warn("Could not start rescan schedule")
		}
	}

	ms.httpServer = &http.Server{
		Addr:              ms.config.GetAddress(),
		Handler:           ms.Handler(),
		ReadHeaderTimeout: time.Duration(ms.config.Server.ReadTimeout) * time.Second,
	}

	ms.logger.WithFields(logrus.Fields{
		"address": fmt.Sprintf("http://%s", ms.config.GetAddress()),
		"tracks":  len(ms.catalog.AllTracks()),
	}).Info("TuneDeck server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := ms.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		ms.stopBackground()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := time.Duration(ms.config.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return ms.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the music server
func (ms *MusicServer) Shutdown(ctx context.Context) error {
	ms.logger.Info("Shutting down music server")
	ms.stopBackground()

	if ms.httpServer == nil {
		return nil
	}
	if err := ms.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	ms.logger.Info("Music server shutdown complete")
	return nil
}

func (ms *MusicServer) stopBackground() {
	ms.stopScheduler()
	ms.stopFileWatcher()
}

func (ms *MusicServer) setupRoutes() {
	mux := ms.mux

	mux.HandleFunc("GET /{$}", ms.handleHome)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(ms.config.Server.StaticDir))))
	mux.HandleFunc("GET /health", ms.handleHealthCheck)
	mux.HandleFunc("GET /api/config", ms.handleGetConfig)
	mux.HandleFunc("GET /api/notifications", ms.handleGetNotifications)

	if ms.config.Server.EnableMetrics && ms.metrics != nil {
		mux.Handle("GET /metrics", ms.metrics.Handler())
	}

	// Tracks
	mux.HandleFunc("GET /api/tracks", ms.handleGetTracks)
	mux.HandleFunc("GET /api/tracks/count", ms.handleGetTrackCount)
	mux.HandleFunc("GET /api/tracks/recent", ms.handleGetRecentTracks)
	mux.HandleFunc("GET /api/tracks/top", ms.handleGetTopTracks)
	mux.HandleFunc("GET /api/tracks/{id}", ms.handleGetTrack)
	mux.HandleFunc("GET /api/search", ms.handleSearch)
	mux.HandleFunc("GET /stream/{id}", ms.handleStreamTrack)
	mux.HandleFunc("GET /api/artwork/{id}", ms.handleAlbumArt)
	if ms.config.Music.AllowUploads {
		mux.HandleFunc("POST /api/tracks/upload", ms.rateLimited(ms.expensive, ms.handleUpload))
	}

	// Library
	mux.HandleFunc("POST /api/library/scan", ms.rateLimited(ms.expensive, ms.handleStartScan))
	mux.HandleFunc("GET /api/library/scan", ms.handleScanStatus)
	mux.HandleFunc("GET /api/favorites", ms.handleGetFavorites)
	mux.HandleFunc("POST /api/favorites/{id}/toggle", ms.handleToggleFavorite)
	mux.HandleFunc("GET /api/history", ms.handleGetHistory)
	mux.HandleFunc("GET /api/stats", ms.handleGetStats)

	// Playlists
	mux.HandleFunc("GET /api/playlists", ms.handleGetPlaylists)
	mux.HandleFunc("POST /api/playlists", ms.handleCreatePlaylist)
	mux.HandleFunc("GET /api/playlists/{id}", ms.handleGetPlaylist)
	mux.HandleFunc("PUT /api/playlists/{id}", ms.handleUpdatePlaylist)
	mux.HandleFunc("DELETE /api/playlists/{id}", ms.handleDeletePlaylist)
	mux.HandleFunc("GET /api/playlists/{id}/tracks", ms.handleGetPlaylistTracks)
	mux.HandleFunc("POST /api/playlists/{id}/tracks", ms.handleAddTrackToPlaylist)
	mux.HandleFunc("DELETE /api/playlists/{id}/tracks/{trackId}", ms.handleRemoveTrackFromPlaylist)
	mux.HandleFunc("POST /api/playlists/{id}/play", ms.handlePlayPlaylist)

	// Player
	mux.HandleFunc("GET /api/player/state", ms.handleGetPlayerState)
	mux.HandleFunc("GET /api/player/queue", ms.handleGetQueue)
	mux.HandleFunc("GET /api/player/events", ms.handlePlayerEvents)
	mux.HandleFunc("POST /api/player/play", ms.handlePlay)
	mux.HandleFunc("POST /api/player/next", ms.handleNext)
	mux.HandleFunc("POST /api/player/previous", ms.handlePrevious)
	mux.HandleFunc("POST /api/player/ended", ms.handleTrackEnded)
	mux.HandleFunc("POST /api/player/progress", ms.handleProgress)
	mux.HandleFunc("PUT /api/player/settings", ms.handleUpdateSettings)
}

// respondJSON writes v as JSON. Status and headers must already be set.
func (ms *MusicServer) respondJSON(w http.ResponseWriter, v interface{}) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Debug("Failed to write response")
	}
}

// respondStatus writes v as JSON with the given status code.
func (ms *MusicServer) respondStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	ms.respondJSON(w, v)
}

// decodeJSON reads a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
