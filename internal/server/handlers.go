package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"tunedeck/internal/catalog"
	"tunedeck/internal/library"
	"tunedeck/internal/notify"
	"tunedeck/pkg/models"
)

// respondWithDomainError maps catalog and library errors onto HTTP statuses.
func (ms *MusicServer) respondWithDomainError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		ms.respondWithError(w, r, http.StatusNotFound, what+" not found", err)
	case errors.Is(err, catalog.ErrInvalid):
		ms.respondWithError(w, r, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, library.ErrNothingToPlay):
		ms.respondWithError(w, r, http.StatusUnprocessableEntity, "Nothing to play", err)
	case errors.Is(err, library.ErrScanInProgress):
		ms.respondWithError(w, r, http.StatusConflict, "A scan is already running", err)
	case errors.Is(err, catalog.ErrStorageUnavailable):
		ms.respondWithError(w, r, http.StatusServiceUnavailable, "Library storage is unavailable", err)
	default:
		ms.respondWithError(w, r, http.StatusInternalServerError, "Internal server error", err)
	}
}

// handleHome serves the main HTML page
func (ms *MusicServer) handleHome(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(ms.config.Server.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}

func (ms *MusicServer) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, nonNil(ms.catalog.AllTracks()))
}

func (ms *MusicServer) handleGetTrackCount(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, map[string]int{"count": len(ms.catalog.AllTracks())})
}

func (ms *MusicServer) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "track_id")
	if !ok {
		return
	}
	track, err := ms.catalog.TrackByID(id)
	if err != nil {
		ms.respondWithDomainError(w, r, "Track", err)
		return
	}
	ms.respondJSON(w, struct {
		models.Track
		Favorite bool `json:"favorite"`
	}{track, ms.catalog.IsFavorite(id)})
}

func (ms *MusicServer) handleGetRecentTracks(w http.ResponseWriter, r *http.Request) {
	n, verr := parseLimit(r)
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	ms.respondJSON(w, nonNil(ms.catalog.RecentTracks(n)))
}

func (ms *MusicServer) handleGetTopTracks(w http.ResponseWriter, r *http.Request) {
	n, verr := parseLimit(r)
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	ms.respondJSON(w, nonNil(ms.catalog.TopTracks(n)))
}

func (ms *MusicServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := sanitizeInput(r.URL.Query().Get("q"))
	if verr := validateSearchQuery(query); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	n, verr := parseLimit(r)
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	results := ms.library.Search(query)
	if len(results) > n {
		results = results[:n]
	}
	ms.respondJSON(w, nonNil(results))
}

// handleStartScan starts a background scan. The scan outlives the request.
func (ms *MusicServer) handleStartScan(w http.ResponseWriter, r *http.Request) {
	// The slot is claimed before answering so concurrent requests get 409.
	run, ok := ms.library.TryBeginScan()
	if !ok {
		ms.respondWithDomainError(w, r, "Scan", library.ErrScanInProgress)
		return
	}

	go func(ctx context.Context) {
		_, _ = ms.runScan(ctx, run)
	}(ms.baseCtx)

	ms.respondStatus(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Scan started",
	})
}

func (ms *MusicServer) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"scanning": ms.library.Scanning(),
		"progress": ms.scanProgress(),
	}
	if last, ok := ms.library.LastScan(); ok {
		resp["lastScan"] = last
	}
	ms.respondJSON(w, resp)
}

func (ms *MusicServer) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, nonNil(ms.catalog.Favorites()))
}

func (ms *MusicServer) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "track_id")
	if !ok {
		return
	}
	favorite, err := ms.library.ToggleFavorite(r.Context(), id)
	if err != nil {
		ms.respondWithDomainError(w, r, "Track", err)
		return
	}
	ms.respondJSON(w, map[string]interface{}{"trackId": id, "favorite": favorite})
}

func (ms *MusicServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	n, verr := parseLimit(r)
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	ms.respondJSON(w, nonNil(ms.catalog.History(n)))
}

func (ms *MusicServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, ms.catalog.Stats())
}

func (ms *MusicServer) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	var notices []notify.Notice
	if ms.notices != nil {
		notices = ms.notices.Recent()
	}
	ms.respondJSON(w, nonNil(notices))
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
