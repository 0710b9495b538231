package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunedeck/internal/metadata"
	"tunedeck/internal/notify"
	"tunedeck/internal/scanner"
	"tunedeck/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// settleDelay is how long a file must stay quiet before it is imported.
const settleDelay = 500 * time.Millisecond

// errRejected marks a readable file that the size or duration policy drops.
var errRejected = errors.New("file rejected by library policy")

// policy mirrors the thresholds the scanner applies.
func (ms *MusicServer) policy() scanner.Policy {
	return scanner.Policy{
		MinSize:     ms.config.MinSizeBytes(),
		MinDuration: ms.config.Music.MinDurationSeconds,
	}
}

// importFile extracts a single file and stores it when it passes the policy.
func (ms *MusicServer) importFile(ctx context.Context, path string) (models.Track, error) {
	track, err := ms.extractor.ExtractFromFile(path)
	if err != nil {
		return models.Track{}, fmt.Errorf("extract %s: %w", path, err)
	}
	if reason := ms.policy().Reject(track.FileSize, track.Duration); reason != "" {
		ms.metrics.RecordSkip(reason)
		return track, fmt.Errorf("%s (%s): %w", path, reason, errRejected)
	}
	if err := ms.catalog.UpsertTrack(ctx, track); err != nil {
		return track, err
	}
	return track, nil
}

// startFileWatcher initializes fsnotify watcher for recursive music dir monitoring.
func (ms *MusicServer) startFileWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	ms.watcher = watcher

	if err := ms.addDirectoryToWatcher(ms.config.Music.LibraryPath); err != nil {
		watcher.Close()
		ms.watcher = nil
		return err
	}

	go ms.watchFiles(watcher)

	ms.logger.WithField("library_path", ms.config.Music.LibraryPath).Info("File watcher started")
	return nil
}

// addDirectoryToWatcher recursively walks and adds subdirectories to watcher.
// Unreadable subdirectories are skipped.
func (ms *MusicServer) addDirectoryToWatcher(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			ms.logger.WithError(err).WithField("directory", path).Warn("Not watching unreadable directory")
			return filepath.SkipDir
		}
		if d.IsDir() {
			return ms.watcher.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels and dispatches events. Creates and
// writes are debounced per path so a file being copied is imported once.
func (ms *MusicServer) watchFiles(watcher *fsnotify.Watcher) {
	pending := make(map[string]*time.Timer)
	settled := make(chan string)
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if path, ready := ms.handleFileEvent(event); ready {
				if t, exists := pending[path]; exists {
					t.Reset(settleDelay)
					continue
				}
				pending[path] = time.AfterFunc(settleDelay, func() {
					select {
					case settled <- path:
					case <-done:
					}
				})
			}

		case path := <-settled:
			delete(pending, path)
			go ms.handleNewFile(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ms.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleFileEvent applies filtering and handles removals and new
// directories. It returns the path of an audio file to import once settled.
func (ms *MusicServer) handleFileEvent(event fsnotify.Event) (string, bool) {
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return "", false
	}

	isAudioFile := ms.extractor.IsAudioFile(event.Name)

	switch {
	case (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && isAudioFile:
		return event.Name, true

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && isAudioFile:
		go ms.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := ms.addDirectoryToWatcher(event.Name); err != nil {
				ms.logger.WithError(err).WithField("directory", event.Name).Warn("Could not watch new directory")
				return "", false
			}
			ms.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
	return "", false
}

// handleNewFile extracts metadata and upserts the track. A rewritten file
// keeps its id, play count and playlist membership.
func (ms *MusicServer) handleNewFile(filePath string) {
	log := ms.logger.WithField("file_path", filePath)
	log.Info("New audio file detected")

	track, err := ms.importFile(ms.baseCtx, filePath)
	switch {
	case errors.Is(err, errRejected):
		log.WithError(err).Debug("Ignoring new file")
		return
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("File vanished before import")
		return
	case err != nil:
		log.WithError(err).Error("Error importing new file")
		return
	}

	log.WithFields(logrus.Fields{
		"artist": track.Artist,
		"title":  track.Title,
		"album":  track.Album,
		"id":     track.ID,
	}).Info("Added new track")
	notify.Notifyf(ms.notifier, notify.Info, "Added %s by %s", track.Title, track.Artist)
}

// handleRemovedFile drops the track of a deleted or renamed file. Playlists
// and favorites lose it too.
func (ms *MusicServer) handleRemovedFile(filePath string) {
	id := metadata.TrackID(filePath)
	if _, err := ms.catalog.TrackByID(id); err != nil {
		return
	}

	if err := ms.catalog.RemoveTrack(ms.baseCtx, id); err != nil {
		ms.logger.WithError(err).WithField("file_path", filePath).Error("Error removing track from library")
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"id":        id,
	}).Info("Removed track from library")
}

// stopFileWatcher closes the watcher (idempotent).
func (ms *MusicServer) stopFileWatcher() {
	if ms.watcher != nil {
		ms.watcher.Close()
	}
}
