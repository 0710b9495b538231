package player

import (
	"sync"
	"time"

	"tunedeck/pkg/models"
)

// State represents the current player state
type State struct {
	Track         *models.Track `json:"track,omitempty"`
	IsPlaying     bool          `json:"isPlaying"`
	CurrentTime   int           `json:"currentTime"`   // in seconds
	TotalDuration int           `json:"totalDuration"` // in seconds
	Volume        float64       `json:"volume"`        // 0.0 to 1.0
	IsMuted       bool          `json:"isMuted"`
	Shuffle       bool          `json:"shuffle"`
	RepeatMode    string        `json:"repeatMode"`
	QueuePosition int           `json:"queuePosition"` // 1-based, 0 when idle
	QueueLength   int           `json:"queueLength"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// StateManager manages the player state and notifies listeners
type StateManager struct {
	state     *State
	mutex     sync.RWMutex
	listeners []chan *State
}

// NewStateManager creates a new player state manager
func NewStateManager() *StateManager {
	return &StateManager{
		state: &State{
			Volume:     1.0,
			RepeatMode: "none",
			UpdatedAt:  time.Now(),
		},
		listeners: make([]chan *State, 0),
	}
}

// GetState returns a copy of the current player state
func (sm *StateManager) GetState() *State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	return sm.snapshot()
}

// SetNowPlaying starts playback of track at the given queue position
func (sm *StateManager) SetNowPlaying(track models.Track, position, length int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Track = &track
	sm.state.IsPlaying = true
	sm.state.CurrentTime = 0
	sm.state.TotalDuration = track.Duration
	sm.state.QueuePosition = position
	sm.state.QueueLength = length
	sm.touch()
}

// UpdatePlaybackState updates playback state (playing/paused)
func (sm *StateManager) UpdatePlaybackState(isPlaying bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.IsPlaying = isPlaying && sm.state.Track != nil
	sm.touch()
}

// UpdateTime updates current playback time and duration
func (sm *StateManager) UpdateTime(currentTime, totalDuration int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.CurrentTime = currentTime
	if totalDuration > 0 {
		sm.state.TotalDuration = totalDuration
	}
	sm.touch()
}

// UpdateVolume updates volume and mute state. Volume is clamped to [0, 1].
func (sm *StateManager) UpdateVolume(volume float64, isMuted bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	switch {
	case volume < 0:
		volume = 0
	case volume > 1:
		volume = 1
	}
	sm.state.Volume = volume
	sm.state.IsMuted = isMuted
	sm.touch()
}

// UpdateSettings updates shuffle and repeat
func (sm *StateManager) UpdateSettings(shuffle bool, repeatMode string) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Shuffle = shuffle
	sm.state.RepeatMode = repeatMode
	sm.touch()
}

// Stop clears the current track when the queue runs out
func (sm *StateManager) Stop() {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Track = nil
	sm.state.IsPlaying = false
	sm.state.CurrentTime = 0
	sm.state.TotalDuration = 0
	sm.state.QueuePosition = 0
	sm.touch()
}

// Subscribe adds a listener for state changes
func (sm *StateManager) Subscribe() <-chan *State {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	ch := make(chan *State, 10)
	sm.listeners = append(sm.listeners, ch)
	return ch
}

// Unsubscribe removes a listener. Unsubscribing a dropped listener is a no-op.
func (sm *StateManager) Unsubscribe(ch <-chan *State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, listener := range sm.listeners {
		if listener == ch {
			close(listener)
			sm.listeners = append(sm.listeners[:i], sm.listeners[i+1:]...)
			break
		}
	}
}

// Subscribers returns the number of live listeners
func (sm *StateManager) Subscribers() int {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	return len(sm.listeners)
}

// snapshot must be called with the lock held.
func (sm *StateManager) snapshot() *State {
	stateCopy := *sm.state
	if sm.state.Track != nil {
		track := *sm.state.Track
		stateCopy.Track = &track
	}
	return &stateCopy
}

// touch stamps the state and notifies listeners. A listener whose buffer is
// full is closed and dropped. Must be called with the lock held.
func (sm *StateManager) touch() {
	sm.state.UpdatedAt = time.Now()

	live := sm.listeners[:0]
	for _, listener := range sm.listeners {
		select {
		case listener <- sm.snapshot():
			live = append(live, listener)
		default:
			close(listener)
		}
	}
	sm.listeners = live
}
