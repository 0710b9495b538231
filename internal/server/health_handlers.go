package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Storage   string                 `json:"storage"`
	Tracks    int                    `json:"trackCount"`
	Scanning  bool                   `json:"scanning"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks. A missing
// library directory degrades the status without failing it.
func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "ok",
		Storage:   "ok",
		Tracks:    len(ms.catalog.AllTracks()),
		Scanning:  ms.library.Scanning(),
		Details:   make(map[string]interface{}),
	}

	if err := ms.checkDatabaseHealth(r.Context()); err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	}

	if err := ms.checkStorageHealth(); err != nil {
		if health.Status == "healthy" {
			health.Status = "degraded"
		}
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	ms.respondStatus(w, status, health)
}

// checkDatabaseHealth pings the key-value store.
func (ms *MusicServer) checkDatabaseHealth(ctx context.Context) error {
	if ms.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return ms.store.Ping(ctx)
}

// checkStorageHealth verifies the library directory is readable when the
// directory provider is in use.
func (ms *MusicServer) checkStorageHealth() error {
	if ms.config.Music.Provider != "directory" {
		return nil
	}
	info, err := os.Stat(ms.config.Music.LibraryPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", ms.config.Music.LibraryPath)
	}
	return nil
}
