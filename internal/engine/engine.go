// Package engine drives the per-frame target tracking state machine. It owns
// all cross-frame state and sequences the detectors, the matcher, the
// tracker, recovery and anonymization; everything else is a collaborator it
// calls synchronously.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kozaktomas/deface/internal/anonymize"
	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/reid"
	"github.com/kozaktomas/deface/internal/track"
	"github.com/kozaktomas/deface/internal/video"
)

// Validation sentinels. Callers map these to their own error surfaces (the
// web API turns the first two into 404, the third into 400).
var (
	ErrVideoNotFound     = errors.New("video file not found")
	ErrTargetDirNotFound = errors.New("target person directory not found")
	ErrNoUsableImages    = errors.New("no usable images in target person directory")
)

// Options controls a processing run.
type Options struct {
	FaceThreshold        float64 // face-detection confidence, default 0.4
	ReIDThreshold        float64 // profile similarity threshold, default 0.7
	MaxFramesWithoutFace int     // reset policy tolerance, default 30
	DisableTrackerReset  bool

	Anonymize anonymize.Options

	KeepAudio bool
	Debugging bool

	FFmpegPath  string
	FFprobePath string
}

func (o *Options) applyDefaults() {
	if o.FaceThreshold <= 0 {
		o.FaceThreshold = 0.4
	}
	if o.ReIDThreshold <= 0 {
		o.ReIDThreshold = 0.7
	}
	if o.MaxFramesWithoutFace <= 0 {
		o.MaxFramesWithoutFace = 30
	}
}

// Request is one video processing job.
type Request struct {
	VideoPath  string
	TargetDir  string
	OutputPath string
	Options    Options

	// OnProgress, when set, is called after every emitted frame.
	OnProgress func(done, total int)
}

// Stats summarizes a completed run.
type Stats struct {
	Frames              int `json:"frames"`
	AnonymizedFaces     int `json:"anonymized_faces"`
	TargetPresentFrames int `json:"target_present_frames"`
	Recoveries          int `json:"recoveries"`
	Resets              int `json:"resets"`
}

// ProfileCache persists extracted reference embeddings keyed by image hash so
// repeat runs over the same reference images skip the extractor. A nil cache
// disables caching.
type ProfileCache interface {
	Embeddings(ctx context.Context, imageHash string) ([]detect.Embedding, error)
	Store(ctx context.Context, imageHash string, embeddings []detect.Embedding) error
}

// Processor runs videos through the anonymization pipeline. Collaborator
// calls are synchronous and block the frame loop; frames are strictly
// sequential.
type Processor struct {
	faces      detect.FaceDetector
	persons    detect.PersonDetector
	embeddings detect.EmbeddingExtractor
	cache      ProfileCache
	logf       func(format string, args ...any)
}

// NewProcessor wires a processor to its collaborators. The cache may be nil.
func NewProcessor(faces detect.FaceDetector, persons detect.PersonDetector, embeddings detect.EmbeddingExtractor, cache ProfileCache) *Processor {
	return &Processor{
		faces:      faces,
		persons:    persons,
		embeddings: embeddings,
		cache:      cache,
		logf:       log.Printf,
	}
}

// ProcessVideo anonymizes every face in the video except the target person's
// and writes the result to the output path. The output carries exactly the
// input's frame count and order, with the source audio copied over when
// present and requested.
func (p *Processor) ProcessVideo(ctx context.Context, req Request) (*Stats, error) {
	req.Options.applyDefaults()

	if _, err := os.Stat(req.VideoPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, req.VideoPath)
	}
	if fi, err := os.Stat(req.TargetDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrTargetDirNotFound, req.TargetDir)
	}

	masker, err := anonymize.New(req.Options.Anonymize)
	if err != nil {
		return nil, err
	}

	profile, err := p.loadProfile(ctx, req.TargetDir)
	if err != nil {
		return nil, err
	}
	matcher := reid.NewMatcher(profile, p.embeddings, req.Options.ReIDThreshold)

	info, err := video.Probe(ctx, req.Options.FFprobePath, req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("probing video: %w", err)
	}

	reader, err := video.NewReader(ctx, req.Options.FFmpegPath, req.VideoPath, info.Width, info.Height)
	if err != nil {
		return nil, fmt.Errorf("opening video: %w", err)
	}
	defer reader.Close()

	audioSource := ""
	if req.Options.KeepAudio && info.HasAudio {
		audioSource = req.VideoPath
	}
	writer, err := video.NewWriter(ctx, req.Options.FFmpegPath, req.OutputPath, video.WriterOptions{
		Width:       info.Width,
		Height:      info.Height,
		FPS:         info.FPS,
		AudioSource: audioSource,
	})
	if err != nil {
		return nil, fmt.Errorf("opening output: %w", err)
	}
	defer writer.Close()

	run := &frameRun{
		processor: p,
		matcher:   matcher,
		masker:    masker,
		opts:      req.Options,
		policy: track.ResetPolicy{
			MaxFramesWithoutFace: req.Options.MaxFramesWithoutFace,
			Disabled:             req.Options.DisableTrackerReset,
		},
	}

	stats := &Stats{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading frame %d: %w", stats.Frames, err)
		}

		run.step(ctx, frame, stats)

		if err := writer.Write(frame); err != nil {
			return nil, fmt.Errorf("writing frame %d: %w", stats.Frames, err)
		}
		stats.Frames++

		if req.OnProgress != nil {
			req.OnProgress(stats.Frames, info.FrameCount)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return stats, nil
}
