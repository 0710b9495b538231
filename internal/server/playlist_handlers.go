package server

import (
	"net/http"

	"tunedeck/internal/catalog"
	"tunedeck/pkg/models"
)

type playlistRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Color       *string               `json:"color"`
	TrackIDs    []string              `json:"trackIds"`
	Smart       bool                  `json:"smart"`
	Criteria    *models.SmartCriteria `json:"criteria"`
}

// validate checks the fields present in the request. Creation additionally
// requires a name.
func (req *playlistRequest) validate(creating bool) []ValidationError {
	var errs []ValidationError
	if req.Name != nil {
		*req.Name = sanitizeInput(*req.Name)
		if verr := validatePlaylistName(*req.Name); verr != nil {
			errs = append(errs, *verr)
		}
	} else if creating {
		errs = append(errs, *validatePlaylistName(""))
	}
	if req.Description != nil {
		*req.Description = sanitizeInput(*req.Description)
		if verr := validatePlaylistDescription(*req.Description); verr != nil {
			errs = append(errs, *verr)
		}
	}
	if req.Color != nil {
		if verr := validateColor(*req.Color); verr != nil {
			errs = append(errs, *verr)
		}
	}
	for _, id := range req.TrackIDs {
		if verr := validateID("track_id", id); verr != nil {
			errs = append(errs, *verr)
			break
		}
	}
	return errs
}

// handleGetPlaylists returns all playlists as JSON.
func (ms *MusicServer) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, nonNil(ms.catalog.Playlists()))
}

// handleCreatePlaylist creates a regular or smart playlist.
func (ms *MusicServer) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if errs := req.validate(true); len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	p := models.Playlist{
		Name:     *req.Name,
		TrackIDs: req.TrackIDs,
		Smart:    req.Smart,
		Criteria: req.Criteria,
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Color != nil {
		p.Color = *req.Color
	}

	created, err := ms.catalog.CreatePlaylist(r.Context(), p)
	if err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	ms.respondStatus(w, http.StatusCreated, created)
}

func (ms *MusicServer) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}
	p, err := ms.catalog.PlaylistByID(id)
	if err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	ms.respondJSON(w, p)
}

// handleUpdatePlaylist changes the fields present in the body.
func (ms *MusicServer) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}

	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if errs := req.validate(false); len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	updated, err := ms.catalog.UpdatePlaylist(r.Context(), id, catalog.PlaylistUpdate{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Criteria:    req.Criteria,
	})
	if err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	ms.respondJSON(w, updated)
}

func (ms *MusicServer) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}
	if err := ms.catalog.DeletePlaylist(r.Context(), id); err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetPlaylistTracks returns the tracks of a playlist in order. Smart
// playlists are evaluated against the library.
func (ms *MusicServer) handleGetPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}
	tracks, err := ms.catalog.PlaylistTracks(id)
	if err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	ms.respondJSON(w, nonNil(tracks))
}

func (ms *MusicServer) handleAddTrackToPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}

	var req struct {
		TrackID string `json:"trackId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if verr := validateID("track_id", req.TrackID); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := ms.catalog.AddTrackToPlaylist(r.Context(), id, req.TrackID); err != nil {
		ms.respondWithDomainError(w, r, "Playlist or track", err)
		return
	}
	ms.respondJSON(w, map[string]interface{}{
		"success": true,
		"message": "Track added to playlist",
	})
}

func (ms *MusicServer) handleRemoveTrackFromPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}
	trackID, ok := ms.pathID(w, r, "trackId", "track_id")
	if !ok {
		return
	}

	if err := ms.catalog.RemoveTrackFromPlaylist(r.Context(), id, trackID); err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePlayPlaylist queues the playlist and starts playback at start.
func (ms *MusicServer) handlePlayPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "playlist_id")
	if !ok {
		return
	}

	var req struct {
		Start int `json:"start"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
	}

	track, err := ms.library.PlayPlaylist(r.Context(), id, req.Start)
	if err != nil {
		ms.respondWithDomainError(w, r, "Playlist", err)
		return
	}
	ms.respondJSON(w, ms.nowPlaying(track))
}
