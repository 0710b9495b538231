package server

import (
	"net/http"
)

// ConfigResponse represents the public configuration sent to the frontend
type ConfigResponse struct {
	Library   LibraryConfigResponse `json:"library"`
	Metrics   bool                  `json:"metrics"`
	PublicURL string                `json:"public_url,omitempty"`
}

// LibraryConfigResponse describes what the library can do on this host.
type LibraryConfigResponse struct {
	Provider         string   `json:"provider"`
	SupportedFormats []string `json:"supported_formats"`
	WatchForChanges  bool     `json:"watch_for_changes"`
	RescanSchedule   string   `json:"rescan_schedule,omitempty"`
	AllowUploads     bool     `json:"allow_uploads"`
	MaxUploadSize    int64    `json:"max_upload_size_mb"`
}

// handleGetConfig returns public configuration settings for the frontend
func (ms *MusicServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	music := ms.config.Music
	var publicURL string
	if ms.tunnel != nil {
		publicURL = ms.tunnel.PublicURL()
	}
	ms.respondJSON(w, ConfigResponse{
		Library: LibraryConfigResponse{
			Provider:         music.Provider,
			SupportedFormats: nonNil(music.SupportedFormats),
			WatchForChanges:  music.WatchForChanges,
			RescanSchedule:   music.RescanSchedule,
			AllowUploads:     music.AllowUploads,
			MaxUploadSize:    music.MaxUploadSizeMB,
		},
		Metrics:   ms.config.Server.EnableMetrics && ms.metrics != nil,
		PublicURL: publicURL,
	})
}
