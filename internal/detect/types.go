// Package detect defines the collaborator contracts for face detection,
// person detection and appearance embedding extraction, plus the HTTP client
// that talks to the inference sidecar implementing them.
package detect

import (
	"context"
	"image"

	"github.com/kozaktomas/deface/internal/geometry"
)

// Detection is a single face detection in the current frame. Detections are
// produced fresh every frame and carry no identity across frames.
type Detection struct {
	Box   geometry.Box
	Score float64
}

// PersonDetection is a single person detection from the person detector.
type PersonDetection struct {
	Box     geometry.Box
	ClassID int
	Score   float64
}

// Embedding is a fixed-length appearance vector for a person crop.
type Embedding []float32

// PersonClassID is the detector class for "person" (COCO class 0).
const PersonClassID = 0

// FaceDetector detects faces in a frame. Detections below the confidence
// threshold are dropped by the detector.
type FaceDetector interface {
	DetectFaces(ctx context.Context, frame *image.RGBA, threshold float64) ([]Detection, error)
}

// PersonDetector detects persons (and possibly other classes) in a frame.
type PersonDetector interface {
	DetectPersons(ctx context.Context, frame *image.RGBA) ([]PersonDetection, error)
}

// EmbeddingExtractor computes the appearance embedding of a cropped image.
// Crops should be letterboxed with ResizeForReID before extraction.
type EmbeddingExtractor interface {
	ExtractEmbedding(ctx context.Context, crop *image.RGBA) (Embedding, error)
}

// Persons filters person detections to the person class at or above the
// given confidence, preserving detector output order.
func Persons(dets []PersonDetection, minScore float64) []PersonDetection {
	var out []PersonDetection
	for _, d := range dets {
		if d.ClassID == PersonClassID && d.Score >= minScore {
			out = append(out, d)
		}
	}
	return out
}
