package server

import (
	"fmt"
	"net/http"
	"strconv"
)

// handleAlbumArt serves embedded artwork collected during extraction. Ids are
// content hashes, so responses can be cached for long.
func (ms *MusicServer) handleAlbumArt(w http.ResponseWriter, r *http.Request) {
	id, ok := ms.pathID(w, r, "id", "artwork_id")
	if !ok {
		return
	}

	art, exists := ms.artwork.Artwork(id)
	if !exists {
		ms.respondWithError(w, r, http.StatusNotFound, "Album art not found", nil)
		return
	}

	etag := fmt.Sprintf(`"%s"`, id)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	if _, err := w.Write(art.Data); err != nil {
		ms.logger.WithError(err).Debug("Artwork write interrupted")
	}
}
