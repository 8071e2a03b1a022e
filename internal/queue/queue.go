// Package queue manages an ordered list of VOD download tasks and drives
// them one at a time through a downloader collaborator, with pause, resume
// and cancel controls.
package queue

import (
	"errors"
	"sync"

	"go-twitch-archive/internal/downloader"
	"go-twitch-archive/internal/helpers"
	"go-twitch-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Queue Errors
var (
	ErrInvalidDestination = errors.New("destination is not a writable directory")
	ErrCancelled          = downloader.ErrCancelled
)

// TaskStatus is the lifecycle state of a single download task.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "Queued"
	StatusActive    TaskStatus = "Active"
	StatusPaused    TaskStatus = "Paused"
	StatusCompleted TaskStatus = "Completed"
	StatusFailed    TaskStatus = "Failed"
)

// DownloadTask tracks one VOD through the queue. Mutated only under the
// manager's lock; callers see copies via TaskSnapshot.
type DownloadTask struct {
	Vod         models.VodEntry
	Destination string
	ChatLog     bool
	Status      TaskStatus
	Progress    float64
	Files       []string
	Err         error
}

// TaskSnapshot is an immutable copy of a task's state at one instant,
// delivered to observers and returned from Tasks().
type TaskSnapshot struct {
	Index       int
	Vod         models.VodEntry
	Destination string
	ChatLog     bool
	Status      TaskStatus
	Progress    float64
	Files       []string
	Err         error
}

// ObserverFunc receives task snapshots whenever a task's state or progress
// changes. Called with the manager's lock held; observers must not call
// back into the manager.
type ObserverFunc func(TaskSnapshot)

// RecordFunc is invoked after a task completes successfully, with the
// downloaded VOD and the file paths the downloader produced.
type RecordFunc func(vod models.VodEntry, files []string)

// Downloader is the collaborator that produces media (and optionally chat)
// files for a VOD. It reports progress through onProgress and honors the
// gate's pause/cancel signals at its own checkpoints.
type Downloader interface {
	Download(vod models.VodEntry, destDir string, chatLog bool, onProgress downloader.ProgressFunc, gate *downloader.Gate) ([]string, error)
}

// Manager owns the ordered task list and a single background worker that
// processes it sequentially. At most one task is Active at any time.
type Manager struct {
	mu        sync.Mutex
	cond      *sync.Cond
	tasks     []*DownloadTask
	cursor    int
	paused    bool
	cancelled bool
	running   bool
	done      chan struct{}

	activeGate *downloader.Gate

	dl       Downloader
	observer ObserverFunc
	record   RecordFunc
}

// NewManager creates a Manager driving the given downloader collaborator.
func NewManager(dl Downloader) *Manager {
	m := &Manager{
		dl:     dl,
		cursor: -1,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetObserver registers the progress/state observer. Must be called before
// Start.
func (m *Manager) SetObserver(fn ObserverFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// SetRecorder registers the completion hook. Must be called before Start.
func (m *Manager) SetRecorder(fn RecordFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = fn
}

// Enqueue appends one task per VOD entry, in order, all in Queued state.
// The destination must be an existing writable directory.
func (m *Manager) Enqueue(vods []models.VodEntry, destination string, wantChatLog bool) error {
	if !helpers.IsWritableDir(destination) {
		return ErrInvalidDestination
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vod := range vods {
		task := &DownloadTask{
			Vod:         vod,
			Destination: destination,
			ChatLog:     wantChatLog,
			Status:      StatusQueued,
		}
		m.tasks = append(m.tasks, task)
		log.Debugf("Enqueued VOD %s (%s)", vod.ID, vod.Title)
		m.notifyLocked(len(m.tasks) - 1)
	}
	return nil
}

// Start launches the background worker if it is not already running.
// No-op when already running.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		log.Debug("Queue worker already running")
		return
	}
	m.running = true
	m.done = make(chan struct{})
	go m.run(m.done)
}

// Wait blocks until the worker has stopped (queue drained or cancelled).
// Returns immediately if the worker was never started.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pause sets the global pause flag. The Active task, if any, is asked to
// suspend its transfer and becomes Paused; no further Queued tasks start
// until Resume.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || m.cancelled {
		return
	}
	m.paused = true
	if m.activeGate != nil {
		m.activeGate.Pause()
		if task := m.activeTaskLocked(); task != nil && task.Status == StatusActive {
			task.Status = StatusPaused
			log.Infof("Paused download of VOD %s", task.Vod.ID)
			m.notifyLocked(m.cursor)
		}
	} else {
		log.Info("Queue paused")
	}
}

// Resume clears the pause flag, re-activates a Paused task and lets
// sequential processing continue.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused || m.cancelled {
		return
	}
	m.paused = false
	if m.activeGate != nil {
		m.activeGate.Resume()
		if task := m.activeTaskLocked(); task != nil && task.Status == StatusPaused {
			task.Status = StatusActive
			log.Infof("Resumed download of VOD %s", task.Vod.ID)
			m.notifyLocked(m.cursor)
		}
	} else {
		log.Info("Queue resumed")
	}
	m.cond.Broadcast()
}

// CancelAll asks the in-flight transfer to stop and marks every remaining
// Queued or Paused task as Failed with a cancellation error. Stopping the
// in-flight transfer is best-effort: the downloader only notices the signal
// at its next checkpoint, so the current chunk may still complete.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return
	}
	m.cancelled = true
	if m.activeGate != nil {
		m.activeGate.Cancel()
	}
	for i, task := range m.tasks {
		if task.Status == StatusQueued || task.Status == StatusPaused {
			task.Status = StatusFailed
			task.Err = ErrCancelled
			m.notifyLocked(i)
		}
	}
	log.Info("Queue cancelled; remaining tasks marked as failed")
	m.cond.Broadcast()
}

// Tasks returns a snapshot of every task in insertion order.
func (m *Manager) Tasks() []TaskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := make([]TaskSnapshot, len(m.tasks))
	for i := range m.tasks {
		snaps[i] = m.snapshotLocked(i)
	}
	return snaps
}

// run is the worker loop. It is the only goroutine that advances the cursor.
func (m *Manager) run(done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	for {
		m.mu.Lock()
		for m.paused && !m.cancelled {
			m.cond.Wait()
		}
		if m.cancelled {
			m.mu.Unlock()
			return
		}
		idx := m.nextQueuedLocked()
		if idx < 0 {
			m.mu.Unlock()
			log.Debug("Queue drained; worker stopping")
			return
		}
		task := m.tasks[idx]
		task.Status = StatusActive
		m.cursor = idx
		gate := downloader.NewGate()
		m.activeGate = gate
		m.notifyLocked(idx)
		m.mu.Unlock()

		m.process(idx, task, gate)
	}
}

// process runs one task to a terminal state. A task's failure never stops
// the rest of the queue.
func (m *Manager) process(idx int, task *DownloadTask, gate *downloader.Gate) {
	log.Infof("Starting download of VOD %s (%s)", task.Vod.ID, task.Vod.Title)

	onProgress := func(fraction float64) {
		m.mu.Lock()
		if fraction >= 0 {
			task.Progress = fraction
		}
		m.notifyLocked(idx)
		m.mu.Unlock()
	}

	files, err := m.dl.Download(task.Vod, task.Destination, task.ChatLog, onProgress, gate)

	m.mu.Lock()
	m.activeGate = nil
	var record RecordFunc
	switch {
	case err == nil:
		task.Status = StatusCompleted
		task.Progress = 1.0
		task.Files = files
		task.Vod.Downloaded = true
		record = m.record
		log.Infof("Completed download of VOD %s", task.Vod.ID)
	case errors.Is(err, ErrCancelled):
		task.Status = StatusFailed
		task.Err = err
		log.Infof("Download of VOD %s stopped by cancellation", task.Vod.ID)
	default:
		task.Status = StatusFailed
		task.Err = err
		log.WithError(err).Errorf("Download of VOD %s failed; continuing with next task", task.Vod.ID)
	}
	vod := task.Vod
	m.notifyLocked(idx)
	m.mu.Unlock()

	if record != nil {
		record(vod, files)
	}
}

func (m *Manager) nextQueuedLocked() int {
	for i, task := range m.tasks {
		if task.Status == StatusQueued {
			return i
		}
	}
	return -1
}

func (m *Manager) activeTaskLocked() *DownloadTask {
	if m.cursor >= 0 && m.cursor < len(m.tasks) {
		return m.tasks[m.cursor]
	}
	return nil
}

func (m *Manager) snapshotLocked(idx int) TaskSnapshot {
	task := m.tasks[idx]
	files := make([]string, len(task.Files))
	copy(files, task.Files)
	return TaskSnapshot{
		Index:       idx,
		Vod:         task.Vod,
		Destination: task.Destination,
		ChatLog:     task.ChatLog,
		Status:      task.Status,
		Progress:    task.Progress,
		Files:       files,
		Err:         task.Err,
	}
}

func (m *Manager) notifyLocked(idx int) {
	if m.observer != nil {
		m.observer(m.snapshotLocked(idx))
	}
}
