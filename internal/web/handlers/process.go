package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/deface/internal/anonymize"
	"github.com/kozaktomas/deface/internal/config"
	"github.com/kozaktomas/deface/internal/engine"
	"github.com/kozaktomas/deface/internal/reid"
	"github.com/kozaktomas/deface/internal/store"
)

// progressEventEvery throttles SSE progress events to one per this many
// frames.
const progressEventEvery = 30

// VideoProcessor runs the anonymization pipeline. Satisfied by
// engine.Processor; narrowed to an interface so handler tests can fake it.
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, req engine.Request) (*engine.Stats, error)
}

// ProcessHandler handles video processing jobs.
type ProcessHandler struct {
	config     *config.Config
	processor  VideoProcessor
	jobManager *JobManager
}

// NewProcessHandler creates a process handler.
func NewProcessHandler(cfg *config.Config, processor VideoProcessor, jobManager *JobManager) *ProcessHandler {
	return &ProcessHandler{
		config:     cfg,
		processor:  processor,
		jobManager: jobManager,
	}
}

// processRequest is the POST /jobs body. Paths are resolved relative to the
// shared directory; absolute paths and traversal are rejected by the
// filename sanitizer.
type processRequest struct {
	Video      string `json:"video"`
	TargetDir  string `json:"target_dir"`
	OutputName string `json:"output_name"`
	Preset     string `json:"preset"`

	ReIDThreshold        float64 `json:"reid_threshold,omitempty"`
	FaceThreshold        float64 `json:"face_threshold,omitempty"`
	MaxFramesWithoutFace int     `json:"max_frames_without_faces,omitempty"`
	DisableTrackerReset  bool    `json:"disable_tracker_reset,omitempty"`
	KeepAudio            bool    `json:"keep_audio,omitempty"`
}

// Start handles POST /jobs: validates the inputs, creates a job and runs the
// pipeline asynchronously.
func (h *ProcessHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Video == "" || req.TargetDir == "" {
		respondError(w, http.StatusBadRequest, "video and target_dir are required")
		return
	}

	sharedDir := h.config.Web.SharedDir
	videoPath := filepath.Join(sharedDir, SanitizeFilename(req.Video))
	targetDir := filepath.Join(sharedDir, SanitizeFilename(req.TargetDir))

	outputName := SanitizeFilename(req.OutputName)
	if outputName == "" {
		outputName = "anonymized_" + SanitizeFilename(req.Video)
	}
	outputPath := filepath.Join(sharedDir, outputName)

	// Fail fast before any job state exists.
	if _, err := os.Stat(videoPath); err != nil {
		respondError(w, http.StatusNotFound, "video file not found")
		return
	}
	if fi, err := os.Stat(targetDir); err != nil || !fi.IsDir() {
		respondError(w, http.StatusNotFound, "target person directory not found")
		return
	}
	images, err := reid.ListReferenceImages(targetDir)
	if err != nil || len(images) == 0 {
		respondError(w, http.StatusBadRequest, "target person directory contains no usable images")
		return
	}

	preset := req.Preset
	if preset == "" {
		preset = "default"
	}

	job := h.jobManager.CreateJob(uuid.NewString(), videoPath, targetDir, outputPath, preset)
	h.persistJob(r.Context(), job)

	go h.run(job, req)

	respondJSON(w, http.StatusAccepted, job)
}

// run executes the pipeline for a job, broadcasting progress and recording
// the terminal state.
func (h *ProcessHandler) run(job *ProcessJob, req processRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.cancel = cancel

	job.SetStatus(JobStatusRunning)
	h.persistStatus(ctx, job.ID, store.JobRunning, "")
	job.SendEvent(JobEvent{Type: "started", Message: "Processing started"})

	preset := h.config.GetPreset(job.Preset)
	opts := engine.Options{
		FaceThreshold:        req.FaceThreshold,
		ReIDThreshold:        req.ReIDThreshold,
		MaxFramesWithoutFace: req.MaxFramesWithoutFace,
		DisableTrackerReset:  req.DisableTrackerReset,
		KeepAudio:            req.KeepAudio,
		FFmpegPath:           h.config.FFmpeg.FFmpegPath,
		FFprobePath:          h.config.FFmpeg.FFprobePath,
		Anonymize: anonymize.Options{
			Mode:       anonymize.Mode(preset.Mode),
			MaskScale:  preset.MaskScale,
			Ellipse:    preset.Ellipse,
			MosaicSize: preset.MosaicSize,
			DrawScores: preset.DrawScores,
		},
	}

	stats, err := h.processor.ProcessVideo(ctx, engine.Request{
		VideoPath:  job.VideoPath,
		TargetDir:  job.TargetDir,
		OutputPath: job.OutputPath,
		Options:    opts,
		OnProgress: func(done, total int) {
			job.mu.Lock()
			job.ProcessedFrames = done
			job.TotalFrames = total
			job.mu.Unlock()
			if done%progressEventEvery == 0 || done == total {
				job.SendEvent(JobEvent{Type: "progress", Data: map[string]int{"done": done, "total": total}})
			}
		},
	})

	now := time.Now()
	job.mu.Lock()
	job.CompletedAt = &now
	job.mu.Unlock()

	switch {
	case err == nil:
		job.mu.Lock()
		job.Stats = stats
		job.mu.Unlock()
		job.SetStatus(JobStatusCompleted)
		h.persistStatus(context.Background(), job.ID, store.JobCompleted, "")
		h.persistStats(context.Background(), job.ID, stats)
		job.SendEvent(JobEvent{Type: "completed", Data: stats})

	case ctx.Err() != nil:
		// Cancelled by the client; the job status was already set.
		h.persistStatus(context.Background(), job.ID, store.JobCancelled, "")

	default:
		log.Printf("job %s failed: %v", job.ID, err)
		job.mu.Lock()
		job.Error = err.Error()
		job.mu.Unlock()
		job.SetStatus(JobStatusFailed)
		h.persistStatus(context.Background(), job.ID, store.JobFailed, err.Error())
		job.SendEvent(JobEvent{Type: "failed", Message: err.Error()})
	}
}

// List handles GET /jobs.
func (h *ProcessHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobManager.ListJobs())
}

// Status handles GET /jobs/{jobId}.
func (h *ProcessHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Cancel handles DELETE /jobs/{jobId}.
func (h *ProcessHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Events handles GET /jobs/{jobId}/events (SSE).
func (h *ProcessHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			if job := h.jobManager.GetJob(id); job != nil {
				return job
			}
			return nil
		},
		func(job SSEJob) any {
			return job.(*ProcessJob)
		},
	)
}

// persistJob mirrors a new job into the database when a backend is up.
func (h *ProcessHandler) persistJob(ctx context.Context, job *ProcessJob) {
	if !store.IsInitialized() {
		return
	}
	jobs, err := store.Jobs()
	if err != nil {
		return
	}
	record := &store.JobRecord{
		ID:         job.ID,
		VideoPath:  job.VideoPath,
		TargetDir:  job.TargetDir,
		OutputPath: job.OutputPath,
		Preset:     job.Preset,
		Status:     store.JobQueued,
	}
	if err := jobs.CreateJob(ctx, record); err != nil {
		log.Printf("persisting job %s: %v", sanitizeForLog(job.ID), err)
	}
}

func (h *ProcessHandler) persistStatus(ctx context.Context, id string, status store.JobStatus, errMsg string) {
	if !store.IsInitialized() {
		return
	}
	jobs, err := store.Jobs()
	if err != nil {
		return
	}
	if err := jobs.UpdateJobStatus(ctx, id, status, errMsg); err != nil {
		log.Printf("updating job %s status: %v", sanitizeForLog(id), err)
	}
}

func (h *ProcessHandler) persistStats(ctx context.Context, id string, stats *engine.Stats) {
	if !store.IsInitialized() {
		return
	}
	jobs, err := store.Jobs()
	if err != nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := jobs.SaveJobStats(ctx, id, data); err != nil {
		log.Printf("saving job %s stats: %v", sanitizeForLog(id), err)
	}
}
