package player

import (
	"testing"

	"tunedeck/pkg/models"
)

func TestSetNowPlayingAndStop(t *testing.T) {
	sm := NewStateManager()
	track := models.Track{ID: "t1", Title: "Teardrop", Duration: 330}

	sm.SetNowPlaying(track, 2, 5)
	state := sm.GetState()
	if state.Track == nil || state.Track.ID != "t1" {
		t.Fatalf("Track = %+v, want t1", state.Track)
	}
	if !state.IsPlaying || state.TotalDuration != 330 {
		t.Errorf("IsPlaying=%v TotalDuration=%d, want true/330", state.IsPlaying, state.TotalDuration)
	}
	if state.QueuePosition != 2 || state.QueueLength != 5 {
		t.Errorf("position = %d/%d, want 2/5", state.QueuePosition, state.QueueLength)
	}

	// Snapshots are independent of later changes.
	state.Track.Title = "mutated"
	if sm.GetState().Track.Title != "Teardrop" {
		t.Error("GetState returned shared track")
	}

	sm.Stop()
	state = sm.GetState()
	if state.Track != nil || state.IsPlaying || state.QueuePosition != 0 {
		t.Errorf("state after Stop = %+v", state)
	}
	if state.QueueLength != 5 {
		t.Errorf("QueueLength = %d, want the queue size kept", state.QueueLength)
	}
}

func TestUpdatePlaybackStateWithoutTrack(t *testing.T) {
	sm := NewStateManager()
	sm.UpdatePlaybackState(true)
	if sm.GetState().IsPlaying {
		t.Error("player cannot be playing with no track")
	}
}

func TestUpdateVolumeClamps(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.3, 0.3},
		{1.7, 1},
	}

	sm := NewStateManager()
	for _, tt := range tests {
		sm.UpdateVolume(tt.in, false)
		if got := sm.GetState().Volume; got != tt.want {
			t.Errorf("UpdateVolume(%v) stored %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSubscribersReceiveSnapshots(t *testing.T) {
	sm := NewStateManager()
	ch := sm.Subscribe()

	sm.UpdateSettings(true, "all")

	select {
	case state := <-ch:
		if !state.Shuffle || state.RepeatMode != "all" {
			t.Errorf("received %+v", state)
		}
	default:
		t.Fatal("no update delivered")
	}

	sm.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	sm.Unsubscribe(ch)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	sm := NewStateManager()
	slow := sm.Subscribe()
	fast := sm.Subscribe()

	for i := 0; i < 10; i++ {
		sm.UpdateTime(i, 100)
		<-fast
	}
	if sm.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d, want 2", sm.Subscribers())
	}

	sm.UpdateTime(11, 100)
	<-fast
	if sm.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1 after overflow", sm.Subscribers())
	}

	drained := 0
	for range slow {
		drained++
	}
	if drained != 10 {
		t.Errorf("slow subscriber drained %d updates, want 10", drained)
	}
}
