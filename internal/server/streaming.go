package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"tunedeck/internal/metadata"
)

// handleStreamTrack serves the audio of a track with range and conditional
// request support.
func (ms *MusicServer) handleStreamTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "track_id")
	if !ok {
		return
	}

	track, err := ms.catalog.TrackByID(id)
	if err != nil {
		ms.respondWithDomainError(w, r, "Track", err)
		return
	}

	if verr := ms.validateStreamPath(track.Locator); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := ms.serveAudio(w, r, track.Locator); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ms.respondWithError(w, r, http.StatusNotFound, "Audio file not found", err)
			return
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error streaming file", err)
	}
}

// serveAudio writes the file at filePath. http.ServeContent answers Range and
// If-None-Match against the ETag set here.
func (ms *MusicServer) serveAudio(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error reading file info: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%s is a directory: %w", filePath, fs.ErrNotExist)
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", fmt.Sprintf(`"%d-%d"`, stat.ModTime().Unix(), stat.Size()))
	w.Header().Set("Content-Type", metadata.ContentType(filePath))

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}
