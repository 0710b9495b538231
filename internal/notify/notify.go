// Package notify delivers short, non-blocking status messages to the user.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level classifies a notice
type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notice is a single user-facing status message
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives notices. Implementations must not block the caller.
type Sink interface {
	Notify(level Level, message string)
}

// Notifyf formats and sends a notice to sink.
func Notifyf(sink Sink, level Level, format string, args ...interface{}) {
	sink.Notify(level, fmt.Sprintf(format, args...))
}

// LogSink writes notices to a logrus logger.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink that logs every notice.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the notice at the matching logrus level.
func (s *LogSink) Notify(level Level, message string) {
	entry := s.logger.WithField("notice", true)
	switch level {
	case Error:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// Feed keeps the most recent notices in memory for the API to return.
type Feed struct {
	mu      sync.RWMutex
	notices []Notice
	limit   int
}

// NewFeed creates a feed retaining at most limit notices.
func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 50
	}
	return &Feed{limit: limit}
}

// Notify records the notice, evicting the oldest when full.
func (f *Feed) Notify(level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.notices = append(f.notices, Notice{Level: level, Message: message, At: time.Now()})
	if len(f.notices) > f.limit {
		f.notices = f.notices[len(f.notices)-f.limit:]
	}
}

// Recent returns the retained notices, newest first.
func (f *Feed) Recent() []Notice {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Notice, len(f.notices))
	for i, n := range f.notices {
		out[len(f.notices)-1-i] = n
	}
	return out
}

// Multi fans a notice out to several sinks.
type Multi []Sink

// Notify forwards to every sink in order.
func (m Multi) Notify(level Level, message string) {
	for _, s := range m {
		s.Notify(level, message)
	}
}

// Discard drops every notice.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(Level, string) {}
