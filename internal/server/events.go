package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tunedeck/internal/player"
)

const eventsKeepAlive = 30 * time.Second

// handlePlayerEvents streams player state changes as server-sent events. The
// current state is sent first. A client too slow to keep up is disconnected
// and is expected to reconnect.
func (ms *MusicServer) handlePlayerEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	state := ms.library.Player()
	updates := state.Subscribe()
	defer state.Unsubscribe(updates)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeStateEvent(w, state.GetState()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, open := <-updates:
			if !open {
				ms.logger.WithField("remote", r.RemoteAddr).Debug("Slow event subscriber dropped")
				return
			}
			if err := writeStateEvent(w, s); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStateEvent(w http.ResponseWriter, s *player.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
	return err
}
