package reid

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/geometry"
)

const (
	// minPersonScore is the person-detector confidence floor during
	// acquisition scans.
	minPersonScore = 0.15

	// faceContainment is how much of a face must lie inside a person box
	// for the face to be attributed to that person.
	faceContainment = 0.9
)

// Match is a successful target acquisition: the face box to seed the tracker
// with, the crops kept for debug reporting, and the ReID score.
type Match struct {
	FaceBox    geometry.Box
	PersonBox  geometry.Box
	FaceCrop   *image.RGBA
	PersonCrop *image.RGBA
	Score      float64
}

// Matcher decides whether the target person is present in a frame. It is a
// pure query over the frame's detections; it never mutates shared state.
type Matcher struct {
	profile   *Profile
	extractor detect.EmbeddingExtractor
	threshold float64
}

// NewMatcher creates a matcher against an immutable target profile.
func NewMatcher(profile *Profile, extractor detect.EmbeddingExtractor, threshold float64) *Matcher {
	return &Matcher{profile: profile, extractor: extractor, threshold: threshold}
}

// FindTarget scans the frame's person detections for the target person and
// returns the best match, or nil when no person clears the similarity
// threshold with a validly attributed face. Candidates are scored by maximum
// cosine similarity against the profile; the highest score wins, and an
// exact tie keeps the earlier candidate in detector output order.
func (m *Matcher) FindTarget(ctx context.Context, frame *image.RGBA, faces []detect.Detection, personDets []detect.PersonDetection) (*Match, error) {
	persons := detect.Persons(personDets, minPersonScore)
	if len(persons) == 0 {
		return nil, nil
	}

	var best *Match
	for _, person := range persons {
		crop := detect.Crop(frame, person.Box)
		if crop == nil {
			continue
		}
		emb, err := m.extractor.ExtractEmbedding(ctx, detect.ResizeForReID(crop))
		if err != nil {
			return nil, fmt.Errorf("embedding person crop: %w", err)
		}

		ok, score := m.profile.Matches(emb, m.threshold)
		if !ok || (best != nil && score <= best.Score) {
			continue
		}

		face, found := attributeFace(person.Box, faces)
		if !found {
			continue
		}

		best = &Match{
			FaceBox:    face.Box,
			PersonBox:  person.Box,
			FaceCrop:   detect.Crop(frame, face.Box),
			PersonCrop: crop,
			Score:      score,
		}
	}
	return best, nil
}

// attributeFace finds the face detection belonging to a person box: the face
// must be at least 90% contained in the person box and its top edge must sit
// within one face-height of the person's top edge (heads are at the top).
// Among valid faces the largest one wins.
func attributeFace(personBox geometry.Box, faces []detect.Detection) (detect.Detection, bool) {
	var best detect.Detection
	bestArea := 0.0
	found := false

	for _, face := range faces {
		if face.Box.ContainmentRatio(personBox) < faceContainment {
			continue
		}
		if math.Abs(face.Box.Y1-personBox.Y1) > face.Box.Height() {
			continue
		}
		if area := face.Box.Area(); area > bestArea {
			best = face
			bestArea = area
			found = true
		}
	}
	return best, found
}
