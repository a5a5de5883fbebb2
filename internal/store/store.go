// Package store defines the optional persistence contracts: job history and
// the reference-embedding cache. The PostgreSQL backend registers itself
// here; everything in the system works with no backend at all.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kozaktomas/deface/internal/detect"
)

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobRecord is one persisted processing job.
type JobRecord struct {
	ID         string    `json:"id"`
	VideoPath  string    `json:"video_path"`
	TargetDir  string    `json:"target_dir"`
	OutputPath string    `json:"output_path"`
	Preset     string    `json:"preset"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Stats      []byte    `json:"stats,omitempty"` // JSON-encoded engine stats
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobStore persists job records.
type JobStore interface {
	CreateJob(ctx context.Context, job *JobRecord) error
	UpdateJobStatus(ctx context.Context, id string, status JobStatus, errMsg string) error
	SaveJobStats(ctx context.Context, id string, stats []byte) error
	// GetJob returns nil when the job does not exist.
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	ListJobs(ctx context.Context, limit int) ([]JobRecord, error)
}

// ProfileCache persists extracted reference embeddings keyed by image hash.
type ProfileCache interface {
	Embeddings(ctx context.Context, imageHash string) ([]detect.Embedding, error)
	Store(ctx context.Context, imageHash string, embeddings []detect.Embedding) error
}

var (
	mu           sync.RWMutex
	jobStore     JobStore
	profileCache ProfileCache
)

// RegisterBackend installs the active storage backend. Called by the
// postgres package after a successful Initialize to avoid import cycles.
func RegisterBackend(jobs JobStore, cache ProfileCache) {
	mu.Lock()
	defer mu.Unlock()
	jobStore = jobs
	profileCache = cache
}

// IsInitialized reports whether a storage backend has been registered.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return jobStore != nil
}

// Jobs returns the registered job store.
func Jobs() (JobStore, error) {
	mu.RLock()
	defer mu.RUnlock()
	if jobStore == nil {
		return nil, errors.New("storage backend not initialized: DATABASE_URL is required")
	}
	return jobStore, nil
}

// Cache returns the registered profile cache, or nil when no backend is
// configured. A nil cache is valid and simply disables caching.
func Cache() ProfileCache {
	mu.RLock()
	defer mu.RUnlock()
	return profileCache
}
