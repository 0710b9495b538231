// Package queue implements the playback queue: an ordered working set of
// tracks plus a cursor, advanced under repeat and shuffle rules.
package queue

import (
	"fmt"
	"math/rand"
	"time"

	"tunedeck/pkg/models"
)

// RepeatMode governs end-of-queue behavior
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

// ParseRepeatMode validates a repeat mode string. The empty string maps to
// RepeatNone.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(s) {
	case "", RepeatNone:
		return RepeatNone, nil
	case RepeatOne, RepeatAll:
		return RepeatMode(s), nil
	default:
		return RepeatNone, fmt.Errorf("invalid repeat mode: %q (must be none, one, or all)", s)
	}
}

// Queue is not safe for concurrent use; the library facade serializes access.
type Queue struct {
	tracks []models.Track
	cursor int // -1 when empty
	intn   func(n int) int
}

// New returns an empty queue using a time-seeded random source for shuffle.
func New() *Queue {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return NewWithRand(rng.Intn)
}

// NewWithRand returns an empty queue drawing shuffle picks from intn, which
// must return a value in [0, n).
func NewWithRand(intn func(n int) int) *Queue {
	return &Queue{cursor: -1, intn: intn}
}

// SetQueue replaces the sequence and the cursor. startIndex is clamped into
// range.
func (q *Queue) SetQueue(tracks []models.Track, startIndex int) {
	q.tracks = make([]models.Track, len(tracks))
	copy(q.tracks, tracks)

	if len(q.tracks) == 0 {
		q.cursor = -1
		return
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(q.tracks) {
		startIndex = len(q.tracks) - 1
	}
	q.cursor = startIndex
}

// Next moves the cursor forward and returns the new current track. Repeat one
// is treated like none; looping a single track is the caller's job. At the end
// of the queue without repeat all, it returns false and leaves the cursor.
func (q *Queue) Next(mode RepeatMode, shuffling bool) (models.Track, bool) {
	if shuffling && len(q.tracks) > 1 {
		return q.shufflePick(), true
	}
	if len(q.tracks) == 0 {
		return models.Track{}, false
	}
	if q.cursor < len(q.tracks)-1 {
		q.cursor++
		return q.tracks[q.cursor], true
	}
	if mode == RepeatAll {
		q.cursor = 0
		return q.tracks[q.cursor], true
	}
	return models.Track{}, false
}

// Previous moves the cursor back. From the first position it wraps to the
// last track regardless of repeat mode.
func (q *Queue) Previous(shuffling bool) (models.Track, bool) {
	if shuffling && len(q.tracks) > 1 {
		return q.shufflePick(), true
	}
	if len(q.tracks) == 0 {
		return models.Track{}, false
	}
	if q.cursor > 0 {
		q.cursor--
	} else {
		q.cursor = len(q.tracks) - 1
	}
	return q.tracks[q.cursor], true
}

// shufflePick requires len(q.tracks) > 1, otherwise it never terminates.
func (q *Queue) shufflePick() models.Track {
	idx := q.intn(len(q.tracks))
	for idx == q.cursor {
		idx = q.intn(len(q.tracks))
	}
	q.cursor = idx
	return q.tracks[idx]
}

// Current returns the track at the cursor.
func (q *Queue) Current() (models.Track, bool) {
	if q.cursor < 0 || q.cursor >= len(q.tracks) {
		return models.Track{}, false
	}
	return q.tracks[q.cursor], true
}

// Position returns the one-based cursor and the queue length, or (0, 0) for
// an empty queue.
func (q *Queue) Position() (int, int) {
	if len(q.tracks) == 0 {
		return 0, 0
	}
	return q.cursor + 1, len(q.tracks)
}

// Index returns the zero-based cursor, or -1 when empty.
func (q *Queue) Index() int { return q.cursor }

// Len returns the number of queued tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// Tracks returns a copy of the queued tracks.
func (q *Queue) Tracks() []models.Track {
	out := make([]models.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.tracks = nil
	q.cursor = -1
}
