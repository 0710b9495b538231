// Package scanner discovers audio files through a Provider and turns them into
// tracks. Individual failures never abort a scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"tunedeck/internal/metrics"
	"tunedeck/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMinSize drops notification sounds and other short clips before
	// they are read.
	DefaultMinSize int64 = 200 * 1024
	// DefaultMinDuration drops tracks with a known duration below it, in
	// seconds.
	DefaultMinDuration = 10
)

// Skip reasons reported in Progress and metrics.
const (
	SkipTooSmall   = "too_small"
	SkipTooShort   = "too_short"
	SkipUnreadable = "unreadable"
)

var errTooSmall = errors.New("source below minimum size")

// Extractor reads track metadata from a source.
type Extractor interface {
	Extract(r io.ReadSeeker, name, locator string, size int64) (models.Track, error)
}

// Progress is reported after each source is handled.
type Progress struct {
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Found     int    `json:"found"`
	Skipped   int    `json:"skipped"`
	Current   string `json:"current,omitempty"`
}

// ProgressFunc receives scan progress. Calls are serialized.
type ProgressFunc func(Progress)

// Result is the outcome of a discovery.
type Result struct {
	Tracks     []models.Track
	Skipped    map[string]int
	Sources    int
	Duration   time.Duration
	Incomplete bool
}

// SkippedTotal sums the skip counters.
func (r *Result) SkippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// Policy decides which sources are worth keeping as tracks.
type Policy struct {
	MinSize     int64
	MinDuration int
}

// Reject returns the skip reason for a source, or "" when it is kept. A
// negative size or a zero duration means unknown and always passes.
func (p Policy) Reject(size int64, duration int) string {
	if size >= 0 && size < p.MinSize {
		return SkipTooSmall
	}
	if duration > 0 && duration < p.MinDuration {
		return SkipTooShort
	}
	return ""
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithMinSize overrides DefaultMinSize.
func WithMinSize(bytes int64) Option {
	return func(s *Scanner) { s.policy.MinSize = bytes }
}

// WithMinDuration overrides DefaultMinDuration.
func WithMinDuration(seconds int) Option {
	return func(s *Scanner) { s.policy.MinDuration = seconds }
}

// WithWorkers bounds concurrent extractions. n <= 0 uses the CPU count.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMetrics records scans and skipped sources.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// Scanner discovers tracks through a Provider.
type Scanner struct {
	provider  Provider
	extractor Extractor
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	policy    Policy
	workers   int
}

// New creates a scanner.
func New(provider Provider, extractor Extractor, logger *logrus.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		provider:  provider,
		extractor: extractor,
		logger:    logger,
		policy:    Policy{MinSize: DefaultMinSize, MinDuration: DefaultMinDuration},
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the size and duration thresholds in use.
func (s *Scanner) Policy() Policy {
	return s.policy
}

// Capability reports the provider in use.
func (s *Scanner) Capability() Capability {
	return s.provider.Capability()
}

// Discover lists sources and extracts them on a bounded worker pool. Tracks
// keep discovery order. When ctx is cancelled no further reads are issued and
// the tracks read so far are returned together with ctx.Err().
func (s *Scanner) Discover(ctx context.Context, progress ProgressFunc) (*Result, error) {
	started := time.Now()

	sources, err := s.provider.Sources(ctx)
	if err != nil && len(sources) == 0 {
		s.metrics.RecordScan("failed", started, 0)
		return nil, fmt.Errorf("list sources: %w", err)
	}
	if err != nil {
		s.logger.WithError(err).Warn("Source listing stopped early")
	}

	s.logger.WithFields(logrus.Fields{
		"provider": s.provider.Capability(),
		"sources":  len(sources),
		"workers":  s.workers,
	}).Info("Scanning music library")

	var (
		mu      sync.Mutex
		state   = Progress{Total: len(sources)}
		skipped = make(map[string]int)
	)
	report := func(name, skipReason string, found bool) {
		mu.Lock()
		defer mu.Unlock()
		state.Processed++
		state.Current = name
		if found {
			state.Found++
		}
		if skipReason != "" {
			state.Skipped++
			skipped[skipReason]++
			s.metrics.RecordSkip(skipReason)
		}
		if progress != nil {
			progress(state)
		}
	}

	results := make([]*models.Track, len(sources))
	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for i, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if s.policy.Reject(src.Size, 0) != "" {
			report(src.Name, SkipTooSmall, false)
			continue
		}

		i, src := i, src
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			track, err := s.read(src)
			if errors.Is(err, errTooSmall) {
				report(src.Name, SkipTooSmall, false)
				return nil
			}
			if err != nil {
				s.logger.WithError(err).WithField("locator", src.Locator).Warn("Skipping unreadable source")
				report(src.Name, SkipUnreadable, false)
				return nil
			}
			if reason := s.policy.Reject(-1, track.Duration); reason != "" {
				report(src.Name, reason, false)
				return nil
			}
			results[i] = &track
			report(src.Name, "", true)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		Tracks:   make([]models.Track, 0, len(sources)),
		Skipped:  skipped,
		Sources:  len(sources),
		Duration: time.Since(started),
	}
	for _, t := range results {
		if t != nil {
			res.Tracks = append(res.Tracks, *t)
		}
	}

	log := s.logger.WithFields(logrus.Fields{
		"tracks":   len(res.Tracks),
		"skipped":  res.SkippedTotal(),
		"duration": res.Duration,
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Incomplete = true
		s.metrics.RecordScan("cancelled", started, len(res.Tracks))
		log.Warn("Scan cancelled")
		return res, ctxErr
	}

	s.metrics.RecordScan("completed", started, len(res.Tracks))
	log.Info("Scan complete")
	return res, nil
}

func (s *Scanner) read(src Source) (models.Track, error) {
	f, err := src.Open()
	if err != nil {
		return models.Track{}, err
	}
	defer f.Close()

	size := src.Size
	if size < 0 {
		if end, err := f.Seek(0, io.SeekEnd); err == nil {
			size = end
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return models.Track{}, err
		}
		if s.policy.Reject(size, 0) != "" {
			return models.Track{}, errTooSmall
		}
	}

	return s.extractor.Extract(f, src.Name, src.Locator, size)
}
