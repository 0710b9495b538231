package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// uploadDir is where uploaded files land, relative to the library root.
const uploadDir = "Uploads"

// handleUpload saves an audio file into the library and imports it.
func (ms *MusicServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := ms.config.Music.MaxUploadSizeMB * 1024 * 1024
	if maxSize > 0 {
		// Leave room for the multipart framing around the file.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Failed to parse upload form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "No file provided", err)
		return
	}
	defer file.Close()

	if maxSize > 0 && header.Size > maxSize {
		ms.respondWithError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds %d MB", ms.config.Music.MaxUploadSizeMB), nil)
		return
	}

	safeFilename := filepath.Base(sanitizeInput(header.Filename))
	if safeFilename == "." || safeFilename == string(filepath.Separator) {
		safeFilename = "uploaded_file" + filepath.Ext(header.Filename)
	}
	if verr := ms.validateContentType(safeFilename); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	dir := filepath.Join(ms.config.Music.LibraryPath, uploadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to create upload folder", err)
		return
	}

	destPath, err := saveUnique(dir, safeFilename, file)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to save file", err)
		return
	}

	track, err := ms.importFile(r.Context(), destPath)
	if err != nil {
		if errors.Is(err, errRejected) {
			os.Remove(destPath)
			ms.respondWithError(w, r, http.StatusUnprocessableEntity, "File is too small or too short for the library", err)
			return
		}
		ms.respondWithDomainError(w, r, "Track", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"filename": filepath.Base(destPath),
		"track_id": track.ID,
		"artist":   track.Artist,
		"title":    track.Title,
	}).Info("File uploaded and added to library")

	ms.respondStatus(w, http.StatusCreated, track)
}

// saveUnique copies src into dir under name, adding a counter when the name
// is taken.
func saveUnique(dir, name string, src io.Reader) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	destPath := filepath.Join(dir, name)
	for counter := 1; ; counter++ {
		dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			destPath = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
			continue
		}
		if err != nil {
			return "", err
		}

		_, copyErr := io.Copy(dest, src)
		closeErr := dest.Close()
		if err := errors.Join(copyErr, closeErr); err != nil {
			os.Remove(destPath)
			return "", err
		}
		return destPath, nil
	}
}
