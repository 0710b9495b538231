package server

import (
	"errors"
	"net/http"

	"tunedeck/internal/catalog"
	"tunedeck/internal/player"
	"tunedeck/internal/queue"
	"tunedeck/pkg/models"

	"github.com/sirupsen/logrus"
)

// playbackResponse pairs the track that is now current with the player state.
type playbackResponse struct {
	Track *models.Track `json:"track,omitempty"`
	State *player.State `json:"state"`
}

func (ms *MusicServer) nowPlaying(track models.Track) playbackResponse {
	return playbackResponse{Track: &track, State: ms.library.Player().GetState()}
}

// handleGetPlayerState returns the current player state
func (ms *MusicServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, ms.library.Player().GetState())
}

func (ms *MusicServer) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	q := ms.library.Queue()
	q.Tracks = nonNil(q.Tracks)
	ms.respondJSON(w, q)
}

// handlePlay starts a track. contextIds is the list to queue; the whole
// library is queued when it is empty.
func (ms *MusicServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID    string   `json:"trackId"`
		ContextIDs []string `json:"contextIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if verr := validateID("track_id", req.TrackID); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	track, err := ms.library.Play(r.Context(), req.TrackID, req.ContextIDs)
	if err != nil {
		ms.respondWithDomainError(w, r, "Track", err)
		return
	}
	ms.respondJSON(w, ms.nowPlaying(track))
}

func (ms *MusicServer) handleNext(w http.ResponseWriter, r *http.Request) {
	track, ok := ms.library.Next(r.Context())
	ms.respondAdvance(w, track, ok)
}

func (ms *MusicServer) handlePrevious(w http.ResponseWriter, r *http.Request) {
	track, ok := ms.library.Previous(r.Context())
	ms.respondAdvance(w, track, ok)
}

// handleTrackEnded is called by the client when playback of the current
// track finishes on its own.
func (ms *MusicServer) handleTrackEnded(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Listened int `json:"listened"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
	}

	track, ok := ms.library.TrackEnded(r.Context(), req.Listened)
	ms.respondAdvance(w, track, ok)
}

// respondAdvance reports the new current track, or only the state when the
// queue did not move.
func (ms *MusicServer) respondAdvance(w http.ResponseWriter, track models.Track, ok bool) {
	if !ok {
		ms.respondJSON(w, playbackResponse{State: ms.library.Player().GetState()})
		return
	}
	ms.respondJSON(w, ms.nowPlaying(track))
}

// handleProgress records the client's playback position.
func (ms *MusicServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentTime   *int  `json:"currentTime"`
		TotalDuration *int  `json:"totalDuration"`
		IsPlaying     *bool `json:"isPlaying"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	state := ms.library.Player()
	if req.CurrentTime != nil || req.TotalDuration != nil {
		current := state.GetState()
		cur, total := current.CurrentTime, current.TotalDuration
		if req.CurrentTime != nil {
			cur = *req.CurrentTime
		}
		if req.TotalDuration != nil {
			total = *req.TotalDuration
		}
		if cur < 0 || total < 0 {
			ms.respondWithValidationError(w, r, []ValidationError{{
				Field:   "currentTime",
				Message: "Times cannot be negative",
				Code:    "INVALID_TIME",
			}})
			return
		}
		state.UpdateTime(cur, total)
	}
	if req.IsPlaying != nil {
		state.UpdatePlaybackState(*req.IsPlaying)
	}
	ms.respondJSON(w, state.GetState())
}

// handleUpdateSettings changes repeat, shuffle and volume. Settings apply even
// when they cannot be saved; the catalog has already notified the user.
func (ms *MusicServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepeatMode *string  `json:"repeatMode"`
		Shuffle    *bool    `json:"shuffle"`
		Volume     *float64 `json:"volume"`
		IsMuted    *bool    `json:"isMuted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	var errs []ValidationError
	if req.RepeatMode != nil {
		if _, err := queue.ParseRepeatMode(*req.RepeatMode); err != nil {
			errs = append(errs, ValidationError{
				Field:   "repeatMode",
				Message: "Repeat mode must be none, one or all",
				Code:    "INVALID_REPEAT_MODE",
			})
		}
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		errs = append(errs, ValidationError{
			Field:   "volume",
			Message: "Volume must be between 0 and 1",
			Code:    "INVALID_VOLUME",
		})
	}
	if len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	ctx := r.Context()
	var saveErr error
	keep := func(err error) {
		if err != nil && saveErr == nil {
			saveErr = err
		}
	}
	if req.RepeatMode != nil {
		keep(ms.library.SetRepeat(ctx, *req.RepeatMode))
	}
	if req.Shuffle != nil {
		keep(ms.library.SetShuffle(ctx, *req.Shuffle))
	}
	if req.Volume != nil || req.IsMuted != nil {
		current := ms.library.Player().GetState()
		volume, muted := current.Volume, current.IsMuted
		if req.Volume != nil {
			volume = *req.Volume
		}
		if req.IsMuted != nil {
			muted = *req.IsMuted
		}
		keep(ms.library.SetVolume(ctx, volume, muted))
	}

	if saveErr != nil {
		if !errors.Is(saveErr, catalog.ErrStorageUnavailable) {
			ms.respondWithDomainError(w, r, "Settings", saveErr)
			return
		}
		ms.logger.WithError(saveErr).WithFields(logrus.Fields{
			"path": r.URL.Path,
		}).Warn("Player settings applied but not saved")
	}
	ms.respondJSON(w, ms.library.Player().GetState())
}
