package server

import (
	"errors"
	"fmt"

	"tunedeck/internal/library"

	"github.com/robfig/cron/v3"
)

// startScheduler runs a library rescan on the given cron spec. A run that
// finds a scan already in progress is skipped.
func (ms *MusicServer) startScheduler(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(spec, func() {
		if ms.baseCtx.Err() != nil {
			return
		}
		ms.logger.WithField("schedule", spec).Info("Scheduled rescan starting")
		if _, err := ms.ScanMusicLibrary(ms.baseCtx); err != nil && !errors.Is(err, library.ErrScanInProgress) {
			ms.logger.WithError(err).Warn("Scheduled rescan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid rescan schedule %q: %w", spec, err)
	}

	ms.scheduler = c
	c.Start()
	ms.logger.WithField("schedule", spec).Info("Rescan schedule enabled")
	return nil
}

// stopScheduler stops the cron runner and waits for a running rescan job to
// return.
func (ms *MusicServer) stopScheduler() {
	if ms.scheduler == nil {
		return
	}
	<-ms.scheduler.Stop().Done()
	ms.scheduler = nil
}
