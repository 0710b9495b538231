package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

const (
	maxIDLength    = 128
	defaultLimit   = 20
	maxLimit       = 500
	maxSearchRunes = 1000
)

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// respondWithValidationError sends a structured validation error response
func (ms *MusicServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	ms.respondStatus(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (ms *MusicServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	ms.respondStatus(w, statusCode, map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// validateID checks an opaque id taken from the URL or a request body.
func validateID(field, id string) *ValidationError {
	code := strings.ToUpper(field)
	if id == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Code:    "MISSING_" + code,
		}
	}
	if len(id) > maxIDLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s too long (max %d characters)", field, maxIDLength),
			Code:    code + "_TOO_LONG",
		}
	}
	if !idPattern.MatchString(id) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s contains invalid characters", field),
			Code:    "INVALID_" + code + "_FORMAT",
		}
	}
	return nil
}

// pathID reads and validates the {name} wildcard of the request path.
func (ms *MusicServer) pathID(w http.ResponseWriter, r *http.Request, name, field string) (string, bool) {
	id := r.PathValue(name)
	if verr := validateID(field, id); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return "", false
	}
	return id, true
}

// validateSearchQuery validates search query parameters
func validateSearchQuery(query string) *ValidationError {
	if len([]rune(query)) > maxSearchRunes {
		return &ValidationError{
			Field:   "q",
			Message: fmt.Sprintf("Search query too long (max %d characters)", maxSearchRunes),
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}

	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   "q",
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}

	return nil
}

// parseLimit reads the limit query parameter, falling back to defaultLimit.
func parseLimit(r *http.Request) (int, *ValidationError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &ValidationError{
			Field:   "limit",
			Message: "Limit must be a positive integer",
			Code:    "INVALID_LIMIT",
		}
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// validateFilePath ensures file path is within the configured music directory
func (ms *MusicServer) validateFilePath(filePath string) *ValidationError {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return &ValidationError{
			Field:   "file_path",
			Message: "Invalid file path",
			Code:    "INVALID_FILE_PATH",
		}
	}

	absMusicDir, err := filepath.Abs(ms.config.Music.LibraryPath)
	if err != nil {
		return &ValidationError{
			Field:   "file_path",
			Message: "Server configuration error",
			Code:    "CONFIG_ERROR",
		}
	}

	relPath, err := filepath.Rel(absMusicDir, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return &ValidationError{
			Field:   "file_path",
			Message: "File path outside allowed directory",
			Code:    "PATH_TRAVERSAL_DENIED",
		}
	}

	return nil
}

// validateStreamPath decides whether a track locator may be served. The files
// provider names arbitrary paths, which are then trusted as configured.
func (ms *MusicServer) validateStreamPath(locator string) *ValidationError {
	if ms.config.Music.Provider == "directory" {
		if verr := ms.validateFilePath(locator); verr != nil {
			return verr
		}
	}
	return ms.validateContentType(locator)
}

// validatePlaylistName validates playlist name
func validatePlaylistName(name string) *ValidationError {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name is required",
			Code:    "MISSING_PLAYLIST_NAME",
		}
	}

	if len(name) > 255 {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name too long (max 255 characters)",
			Code:    "PLAYLIST_NAME_TOO_LONG",
		}
	}

	if strings.ContainsAny(name, "\x00\n\r") {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name contains invalid characters",
			Code:    "INVALID_PLAYLIST_NAME_CHARACTERS",
		}
	}

	return nil
}

// validatePlaylistDescription validates playlist description
func validatePlaylistDescription(description string) *ValidationError {
	if len(description) > 1000 {
		return &ValidationError{
			Field:   "description",
			Message: "Playlist description too long (max 1000 characters)",
			Code:    "PLAYLIST_DESCRIPTION_TOO_LONG",
		}
	}

	return nil
}

func validateColor(color string) *ValidationError {
	if color != "" && !colorPattern.MatchString(color) {
		return &ValidationError{
			Field:   "color",
			Message: "Color must be a hex value such as #1db954",
			Code:    "INVALID_COLOR",
		}
	}
	return nil
}

// validateContentType validates content types for streaming and uploads
func (ms *MusicServer) validateContentType(filePath string) *ValidationError {
	if !ms.extractor.IsAudioFile(filePath) {
		return &ValidationError{
			Field:   "file_type",
			Message: fmt.Sprintf("Unsupported file type: %s", strings.ToLower(filepath.Ext(filePath))),
			Code:    "UNSUPPORTED_FILE_TYPE",
		}
	}

	return nil
}

// sanitizeInput strips null bytes and surrounding whitespace.
func sanitizeInput(input string) string {
	return strings.TrimSpace(strings.ReplaceAll(input, "\x00", ""))
}
