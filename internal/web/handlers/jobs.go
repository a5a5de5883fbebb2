package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/deface/internal/engine"
)

// eventChannelBuffer is the per-listener event buffer; slow SSE clients drop
// events instead of blocking the job.
const eventChannelBuffer = 64

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ProcessJob represents an async video anonymization job.
type ProcessJob struct {
	EventBroadcaster

	ID              string        `json:"id"`
	VideoPath       string        `json:"video_path"`
	TargetDir       string        `json:"target_dir"`
	OutputPath      string        `json:"output_path"`
	Preset          string        `json:"preset"`
	Status          JobStatus     `json:"status"`
	TotalFrames     int           `json:"total_frames"`
	ProcessedFrames int           `json:"processed_frames"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Stats           *engine.Stats `json:"stats,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *ProcessJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStatus moves the job to a new status under the broadcaster lock.
func (j *ProcessJob) SetStatus(status JobStatus) {
	j.mu.Lock()
	j.Status = status
	j.mu.Unlock()
}

// Cancel cancels the processing job.
func (j *ProcessJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.SetStatus(JobStatusCancelled)
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*ProcessJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*ProcessJob),
	}
}

// CreateJob creates a new processing job.
func (m *JobManager) CreateJob(id, videoPath, targetDir, outputPath, preset string) *ProcessJob {
	job := &ProcessJob{
		ID:         id,
		VideoPath:  videoPath,
		TargetDir:  targetDir,
		OutputPath: outputPath,
		Preset:     preset,
		Status:     JobStatusPending,
		StartedAt:  time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *ProcessJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*ProcessJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*ProcessJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
