package library

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tunedeck/internal/catalog"
	"tunedeck/internal/database"
	"tunedeck/internal/notify"
	"tunedeck/internal/player"
	"tunedeck/internal/queue"
	"tunedeck/internal/scanner"
	"tunedeck/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScanner returns a canned result, optionally waiting on release first.
type fakeScanner struct {
	result  *scanner.Result
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeScanner) Discover(ctx context.Context, progress scanner.ProgressFunc) (*scanner.Result, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if progress != nil && f.result != nil {
		progress(scanner.Progress{Total: len(f.result.Tracks), Processed: len(f.result.Tracks), Found: len(f.result.Tracks)})
	}
	return f.result, f.err
}

type fixture struct {
	lib     *Library
	catalog *catalog.Catalog
	store   *database.Memory
	feed    *notify.Feed
	scanner *fakeScanner
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func tracks(n int) []models.Track {
	out := make([]models.Track, n)
	for i := range out {
		out[i] = models.Track{
			ID:       fmt.Sprintf("t%d", i+1),
			Title:    fmt.Sprintf("Track %d", i+1),
			Artist:   models.UnknownArtist,
			Album:    models.UnknownAlbum,
			Duration: 200,
		}
	}
	return out
}

// newFixture builds a library over a memory store seeded with n tracks. The
// queue's random source is fixed so shuffle picks are predictable.
func newFixture(t *testing.T, n int, picks ...int) *fixture {
	t.Helper()
	ctx := context.Background()

	store := database.NewMemory()
	feed := notify.NewFeed(20)
	cat := catalog.New(store, feed, quietLogger())
	require.NoError(t, cat.Init(ctx))
	if n > 0 {
		_, err := cat.UpsertTracks(ctx, tracks(n))
		require.NoError(t, err)
	}

	i := 0
	q := queue.NewWithRand(func(n int) int {
		if len(picks) == 0 {
			return 0
		}
		v := picks[i%len(picks)] % n
		i++
		return v
	})

	scn := &fakeScanner{}
	lib := New(cat, scn, feed, player.NewStateManager(), quietLogger(), WithQueue(q))
	return &fixture{lib: lib, catalog: cat, store: store, feed: feed, scanner: scn}
}

func (f *fixture) nowPlaying(t *testing.T) string {
	t.Helper()
	state := f.lib.Player().GetState()
	if state.Track == nil {
		return ""
	}
	return state.Track.ID
}

func TestScanStoresTracksAndNotifies(t *testing.T) {
	f := newFixture(t, 0)
	f.scanner.result = &scanner.Result{
		Tracks:  tracks(3),
		Skipped: map[string]int{scanner.SkipTooSmall: 2},
	}

	var progressCalls int
	summary, err := f.lib.Scan(context.Background(), func(scanner.Progress) { progressCalls++ })
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 3, summary.Added)
	assert.Equal(t, 1, progressCalls)
	assert.Len(t, f.catalog.AllTracks(), 3)

	last, ok := f.lib.LastScan()
	require.True(t, ok)
	assert.Equal(t, summary.Added, last.Added)

	notices := f.feed.Recent()
	require.NotEmpty(t, notices)
	assert.Equal(t, notify.Info, notices[0].Level)
	assert.Contains(t, notices[0].Message, "2 files skipped")

	// A rescan of the same files adds nothing.
	summary, err = f.lib.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Added)
}

func TestScanPrunesDanglingPlaylistEntries(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	stale := `[{"id":"p1","name":"Mix","trackIds":["t1","gone"]}]`
	require.NoError(t, store.Set(ctx, catalog.KeyPlaylists, []byte(stale)))

	cat := catalog.New(store, notify.Discard{}, quietLogger())
	require.NoError(t, cat.Init(ctx))
	scn := &fakeScanner{result: &scanner.Result{Tracks: tracks(1)}}
	lib := New(cat, scn, notify.Discard{}, player.NewStateManager(), quietLogger())

	summary, err := lib.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pruned)

	got, err := cat.PlaylistByID("p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.TrackIDs)
}

func TestScanCancelledKeepsPartialResults(t *testing.T) {
	f := newFixture(t, 0)
	f.scanner.result = &scanner.Result{Tracks: tracks(2), Incomplete: true}
	f.scanner.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.lib.Scan(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Incomplete)
	assert.Len(t, f.catalog.AllTracks(), 2)
	assert.Equal(t, notify.Warning, f.feed.Recent()[0].Level)
}

func TestScanUnsupported(t *testing.T) {
	f := newFixture(t, 0)
	f.scanner.err = scanner.ErrUnsupported

	_, err := f.lib.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, scanner.ErrUnsupported)
	assert.Equal(t, notify.Error, f.feed.Recent()[0].Level)
	assert.False(t, f.lib.Scanning())
}

func TestScanRejectsConcurrentScan(t *testing.T) {
	f := newFixture(t, 0)
	f.scanner.result = &scanner.Result{Tracks: tracks(1)}
	f.scanner.release = make(chan struct{})
	f.scanner.started = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.lib.Scan(context.Background(), nil)
		done <- err
	}()
	<-f.scanner.started

	assert.True(t, f.lib.Scanning())
	_, err := f.lib.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(f.scanner.release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scan did not finish")
	}
}

func TestTryBeginScanClaimsSlot(t *testing.T) {
	f := newFixture(t, 0)
	f.scanner.result = &scanner.Result{Tracks: tracks(2)}

	run, ok := f.lib.TryBeginScan()
	require.True(t, ok)
	assert.True(t, f.lib.Scanning())

	_, again := f.lib.TryBeginScan()
	assert.False(t, again)
	_, err := f.lib.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrScanInProgress)

	summary, err := run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Added)
	assert.False(t, f.lib.Scanning())

	_, ok = f.lib.TryBeginScan()
	assert.True(t, ok)
}

func TestPlayQueuesContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)

	track, err := f.lib.Play(ctx, "t3", []string{"t4", "t3", "missing", "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t3", track.ID)

	q := f.lib.Queue()
	assert.Equal(t, 2, q.Position)
	assert.Equal(t, 3, q.Total)

	got, err := f.catalog.TrackByID("t3")
	require.NoError(t, err)
	assert.Equal(t, 1, got.PlayCount)

	state := f.lib.Player().GetState()
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 2, state.QueuePosition)
}

func TestPlayWholeLibraryWhenNoContext(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.lib.Play(context.Background(), "t2", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, f.lib.Queue().Total)
}

func TestPlayUnknownTrack(t *testing.T) {
	f := newFixture(t, 2)
	_, err := f.lib.Play(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, "", f.nowPlaying(t))
}

func TestPlayPlaylist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	p, err := f.catalog.CreatePlaylist(ctx, models.Playlist{Name: "Two", TrackIDs: []string{"t3", "t1"}})
	require.NoError(t, err)

	track, err := f.lib.PlayPlaylist(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "t1", track.ID)

	empty, err := f.catalog.CreatePlaylist(ctx, models.Playlist{Name: "Empty"})
	require.NoError(t, err)
	_, err = f.lib.PlayPlaylist(ctx, empty.ID, 0)
	assert.ErrorIs(t, err, ErrNothingToPlay)

	_, err = f.lib.PlayPlaylist(ctx, "nope", 0)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestNextAndPreviousFollowQueueRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	_, err := f.lib.Play(ctx, "t1", nil)
	require.NoError(t, err)

	track, ok := f.lib.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "t2", track.ID)

	_, ok = f.lib.Next(ctx)
	assert.False(t, ok, "end of queue with repeat none")
	assert.Equal(t, "t2", f.nowPlaying(t), "player is left alone")

	require.NoError(t, f.lib.SetRepeat(ctx, "all"))
	track, ok = f.lib.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "t1", track.ID)

	require.NoError(t, f.lib.SetRepeat(ctx, "none"))
	track, ok = f.lib.Previous(ctx)
	require.True(t, ok)
	assert.Equal(t, "t2", track.ID, "previous wraps regardless of repeat")
}

func TestNextOnEmptyQueue(t *testing.T) {
	f := newFixture(t, 0)
	_, ok := f.lib.Next(context.Background())
	assert.False(t, ok)
	_, ok = f.lib.Previous(context.Background())
	assert.False(t, ok)
	_, ok = f.lib.TrackEnded(context.Background(), 10)
	assert.False(t, ok)
}

func TestShuffleNextUsesQueueRandomness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, 2)
	require.NoError(t, f.lib.SetShuffle(ctx, true))
	_, err := f.lib.Play(ctx, "t1", nil)
	require.NoError(t, err)

	track, ok := f.lib.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "t3", track.ID)
}

func TestTrackEnded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	_, err := f.lib.Play(ctx, "t1", nil)
	require.NoError(t, err)

	track, ok := f.lib.TrackEnded(ctx, 195)
	require.True(t, ok)
	assert.Equal(t, "t2", track.ID)

	history := f.catalog.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, models.HistoryEntry{TrackID: "t1", PlayedAt: history[0].PlayedAt, Listened: 195, Completed: true}, history[0])

	_, ok = f.lib.TrackEnded(ctx, 0)
	assert.False(t, ok)
	assert.Equal(t, "", f.nowPlaying(t), "end of queue stops the player")
	assert.Equal(t, 200, f.catalog.History(0)[0].Listened, "unknown listen time counts the full track")
}

func TestTrackEndedRepeatOneReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	require.NoError(t, f.lib.SetRepeat(ctx, "one"))
	_, err := f.lib.Play(ctx, "t2", nil)
	require.NoError(t, err)

	track, ok := f.lib.TrackEnded(ctx, 200)
	require.True(t, ok)
	assert.Equal(t, "t2", track.ID)

	got, _ := f.catalog.TrackByID("t2")
	assert.Equal(t, 2, got.PlayCount)

	// A manual skip still advances under repeat one.
	track, ok = f.lib.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "t3", track.ID)
}

func TestSkipRecordsPartialListen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	_, err := f.lib.Play(ctx, "t1", nil)
	require.NoError(t, err)

	f.lib.Player().UpdateTime(42, 200)
	_, ok := f.lib.Next(ctx)
	require.True(t, ok)

	// Skipping straight away records nothing.
	_, ok = f.lib.Next(ctx)
	require.True(t, ok)

	history := f.catalog.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, "t1", history[0].TrackID)
	assert.Equal(t, 42, history[0].Listened)
	assert.False(t, history[0].Completed)
}

func TestSettingsPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	require.NoError(t, f.lib.SetRepeat(ctx, "all"))
	require.NoError(t, f.lib.SetShuffle(ctx, true))
	require.NoError(t, f.lib.SetVolume(ctx, 1.5, false))

	err := f.lib.SetRepeat(ctx, "sometimes")
	assert.ErrorIs(t, err, catalog.ErrInvalid)

	settings := f.catalog.Settings()
	assert.Equal(t, "all", settings.RepeatMode)
	assert.True(t, settings.Shuffle)
	assert.Equal(t, 1.0, settings.Volume)

	restored := New(f.catalog, f.scanner, notify.Discard{}, player.NewStateManager(), quietLogger())
	state := restored.Player().GetState()
	assert.Equal(t, "all", state.RepeatMode)
	assert.True(t, state.Shuffle)
}

func TestToggleFavorite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	fav, err := f.lib.ToggleFavorite(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, fav)
	assert.True(t, f.catalog.IsFavorite("t1"))

	fav, err = f.lib.ToggleFavorite(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, fav)

	_, err = f.lib.ToggleFavorite(ctx, "ghost")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestPlaybackSurvivesStorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.store.FailWrites = true

	track, err := f.lib.Play(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", track.ID)
	assert.Equal(t, "t1", f.nowPlaying(t))

	_, ok := f.lib.TrackEnded(ctx, 200)
	assert.True(t, ok)

	notices := f.feed.Recent()
	require.NotEmpty(t, notices)
	assert.Equal(t, notify.Warning, notices[0].Level)

	err = f.lib.SetShuffle(ctx, true)
	assert.ErrorIs(t, err, catalog.ErrStorageUnavailable)
}
