package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-twitch-archive/internal/downloader"
	"go-twitch-archive/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDownloader is a scriptable collaborator. Each download blocks until
// the test releases it, checking the gate like a real transfer would.
type fakeDownloader struct {
	mu       sync.Mutex
	order    []string
	failIDs  map[string]error
	started  chan string
	release  map[string]chan struct{}
	steps    int // gate checks per download
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		failIDs: map[string]error{},
		started: make(chan string, 16),
		release: map[string]chan struct{}{},
		steps:   1,
	}
}

func (f *fakeDownloader) releaseChan(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.release[id]
	if !ok {
		ch = make(chan struct{})
		f.release[id] = ch
	}
	return ch
}

func (f *fakeDownloader) Download(vod models.VodEntry, destDir string, chatLog bool, onProgress downloader.ProgressFunc, gate *downloader.Gate) ([]string, error) {
	f.mu.Lock()
	f.order = append(f.order, vod.ID)
	f.mu.Unlock()
	f.started <- vod.ID
	<-f.releaseChan(vod.ID)

	for i := 0; i < f.steps; i++ {
		if gate != nil {
			if err := gate.Wait(); err != nil {
				return nil, err
			}
		}
		if onProgress != nil {
			onProgress(float64(i+1) / float64(f.steps))
		}
	}
	if err, ok := f.failIDs[vod.ID]; ok {
		return nil, err
	}
	return []string{destDir + "/" + vod.ID + ".mp4"}, nil
}

func (f *fakeDownloader) orderSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func vods(ids ...string) []models.VodEntry {
	out := make([]models.VodEntry, len(ids))
	for i, id := range ids {
		out[i] = models.VodEntry{ID: id, Title: "vod " + id, Channel: "chan", Kind: models.KindBroadcast}
	}
	return out
}

func waitStarted(t *testing.T, f *fakeDownloader, want string) {
	t.Helper()
	select {
	case id := <-f.started:
		require.Equal(t, want, id)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s to start", want)
	}
}

func waitStatus(t *testing.T, m *Manager, idx int, want TaskStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Tasks()[idx].Status == want
	}, 5*time.Second, 5*time.Millisecond, "task %d never reached %s", idx, want)
}

func TestEnqueue_InvalidDestination(t *testing.T) {
	m := NewManager(newFakeDownloader())
	err := m.Enqueue(vods("1"), "/nonexistent/path/for/sure", false)
	assert.True(t, errors.Is(err, ErrInvalidDestination))
	assert.Empty(t, m.Tasks())
}

func TestProcessingOrderEqualsInsertionOrder(t *testing.T) {
	f := newFakeDownloader()
	m := NewManager(f)
	require.NoError(t, m.Enqueue(vods("a", "b", "c"), t.TempDir(), false))
	m.Start()

	for _, id := range []string{"a", "b", "c"} {
		waitStarted(t, f, id)
		close(f.releaseChan(id))
	}
	m.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, f.orderSeen())
	for _, snap := range m.Tasks() {
		assert.Equal(t, StatusCompleted, snap.Status)
		assert.Equal(t, 1.0, snap.Progress)
		assert.True(t, snap.Vod.Downloaded)
		assert.Len(t, snap.Files, 1)
	}
}

func TestAtMostOneActive(t *testing.T) {
	f := newFakeDownloader()
	m := NewManager(f)

	var mu sync.Mutex
	maxActive := 0
	m.SetObserver(func(TaskSnapshot) {})
	require.NoError(t, m.Enqueue(vods("a", "b", "c"), t.TempDir(), false))
	m.Start()

	for _, id := range []string{"a", "b", "c"} {
		waitStarted(t, f, id)
		active := 0
		for _, snap := range m.Tasks() {
			if snap.Status == StatusActive {
				active++
			}
		}
		mu.Lock()
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		close(f.releaseChan(id))
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxActive, 1)
}

// Enqueue A, B, C; A completes; B becomes Active; pausing during B leaves C
// Queued; resuming re-activates B; on B's completion C becomes Active.
func TestPauseResumeMidQueue(t *testing.T) {
	f := newFakeDownloader()
	m := NewManager(f)
	require.NoError(t, m.Enqueue(vods("a", "b", "c"), t.TempDir(), false))
	m.Start()

	waitStarted(t, f, "a")
	close(f.releaseChan("a"))
	waitStatus(t, m, 0, StatusCompleted)

	waitStarted(t, f, "b")
	m.Pause()
	waitStatus(t, m, 1, StatusPaused)
	assert.Equal(t, StatusQueued, m.Tasks()[2].Status)

	// B stays paused even when its transfer would otherwise proceed
	close(f.releaseChan("b"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StatusPaused, m.Tasks()[1].Status)
	assert.Equal(t, StatusQueued, m.Tasks()[2].Status)

	m.Resume()
	waitStatus(t, m, 1, StatusCompleted)

	waitStarted(t, f, "c")
	assert.Equal(t, StatusActive, m.Tasks()[2].Status)
	close(f.releaseChan("c"))
	m.Wait()
	assert.Equal(t, StatusCompleted, m.Tasks()[2].Status)
}

func TestPauseBetweenTasksHaltsAdvancement(t *testing.T) {
	f := newFakeDownloader()
	f.steps = 0 // transfer never checks the gate, so it finishes despite the pause
	m := NewManager(f)
	require.NoError(t, m.Enqueue(vods("a", "b"), t.TempDir(), false))
	m.Start()

	waitStarted(t, f, "a")
	m.Pause()
	close(f.releaseChan("a"))
	waitStatus(t, m, 0, StatusCompleted)

	// With the queue paused and nothing active, the next task must not start
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StatusQueued, m.Tasks()[1].Status)

	m.Resume()
	waitStarted(t, f, "b")
	close(f.releaseChan("b"))
	m.Wait()
	assert.Equal(t, StatusCompleted, m.Tasks()[1].Status)
}

// A fails with a download error; B still starts and completes.
func TestFailureDoesNotHaltQueue(t *testing.T) {
	f := newFakeDownloader()
	f.failIDs["a"] = fmt.Errorf("%w: received status 500", downloader.ErrHttpStatus)
	m := NewManager(f)
	require.NoError(t, m.Enqueue(vods("a", "b"), t.TempDir(), false))
	m.Start()

	waitStarted(t, f, "a")
	close(f.releaseChan("a"))
	waitStarted(t, f, "b")
	close(f.releaseChan("b"))
	m.Wait()

	snaps := m.Tasks()
	assert.Equal(t, StatusFailed, snaps[0].Status)
	assert.True(t, errors.Is(snaps[0].Err, downloader.ErrHttpStatus))
	assert.False(t, snaps[0].Vod.Downloaded)
	assert.Equal(t, StatusCompleted, snaps[1].Status)
	assert.True(t, snaps[1].Vod.Downloaded)
}

func TestCancelAll(t *testing.T) {
	f := newFakeDownloader()
	f.steps = 3
	m := NewManager(f)
	require.NoError(t, m.Enqueue(vods("a", "b", "c"), t.TempDir(), false))
	m.Start()

	waitStarted(t, f, "a")
	m.CancelAll()
	close(f.releaseChan("a"))
	m.Wait()

	snaps := m.Tasks()
	for _, snap := range snaps {
		assert.Equal(t, StatusFailed, snap.Status, "task %d", snap.Index)
		assert.True(t, errors.Is(snap.Err, ErrCancelled), "task %d", snap.Index)
	}
	// b and c never reached the downloader
	assert.Equal(t, []string{"a"}, f.orderSeen())
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFakeDownloader()
	m := NewManager(f)
	require.NoError(t, m.Enqueue(vods("a"), t.TempDir(), false))
	m.Start()
	m.Start() // no second worker

	waitStarted(t, f, "a")
	close(f.releaseChan("a"))
	m.Wait()

	select {
	case id := <-f.started:
		t.Fatalf("unexpected extra download start: %s", id)
	default:
	}
}

func TestObserverSeesProgressAndTerminalStates(t *testing.T) {
	f := newFakeDownloader()
	f.steps = 4
	m := NewManager(f)

	var mu sync.Mutex
	var statuses []TaskStatus
	var progress []float64
	m.SetObserver(func(snap TaskSnapshot) {
		mu.Lock()
		statuses = append(statuses, snap.Status)
		progress = append(progress, snap.Progress)
		mu.Unlock()
	})

	recorded := make(chan models.VodEntry, 1)
	m.SetRecorder(func(vod models.VodEntry, files []string) {
		recorded <- vod
	})

	require.NoError(t, m.Enqueue(vods("a"), t.TempDir(), true))
	m.Start()
	waitStarted(t, f, "a")
	close(f.releaseChan("a"))
	m.Wait()

	mu.Lock()
	assert.Contains(t, statuses, StatusQueued)
	assert.Contains(t, statuses, StatusActive)
	assert.Equal(t, StatusCompleted, statuses[len(statuses)-1])
	assert.Equal(t, 1.0, progress[len(progress)-1])
	mu.Unlock()

	select {
	case vod := <-recorded:
		assert.Equal(t, "a", vod.ID)
		assert.True(t, vod.Downloaded)
	case <-time.After(time.Second):
		t.Fatal("recorder hook never called")
	}
}
