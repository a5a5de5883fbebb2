package engine

import (
	"context"
	"image"

	"github.com/kozaktomas/deface/internal/anonymize"
	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/geometry"
	"github.com/kozaktomas/deface/internal/reid"
	"github.com/kozaktomas/deface/internal/track"
)

// disambiguationPersonScore is the person-detector confidence floor when
// counting persons overlapping the tracked region.
const disambiguationPersonScore = 0.3

// containmentThreshold is the containment ratio above which a face detection
// counts as inside the tracked region.
const containmentThreshold = 0.5

// frameRun holds the cross-frame state of one video run. The state machine
// is strictly sequential: frame N+1 never starts before frame N's mutations
// have committed.
type frameRun struct {
	processor *Processor
	matcher   *reid.Matcher
	masker    *anonymize.Anonymizer
	opts      Options
	policy    track.ResetPolicy

	state track.State

	// personSlot memoizes the person detector result for the current frame,
	// so the lazy invocation paths never run the detector twice.
	personSlot    []detect.PersonDetection
	personSlotSet bool
}

// persons runs the person detector at most once per frame. Failures degrade
// to an empty result with a warning instead of aborting the video.
func (r *frameRun) persons(ctx context.Context, frame *image.RGBA) []detect.PersonDetection {
	if r.personSlotSet {
		return r.personSlot
	}
	dets, err := r.processor.persons.DetectPersons(ctx, frame)
	if err != nil {
		r.processor.logf("warning: person detection failed, continuing without: %v", err)
		dets = nil
	}
	r.personSlot = dets
	r.personSlotSet = true
	return r.personSlot
}

// step processes one frame in place: it advances the state machine and masks
// every face detection not attributed to the target.
func (r *frameRun) step(ctx context.Context, frame *image.RGBA, stats *Stats) {
	r.personSlot = nil
	r.personSlotSet = false

	faces, err := r.processor.faces.DetectFaces(ctx, frame, r.opts.FaceThreshold)
	if err != nil {
		r.processor.logf("warning: face detection failed, continuing without: %v", err)
		faces = nil
	}

	// excluded marks the face detections attributed to the target this
	// frame. The anonymization set is everything else, recomputed from
	// scratch every frame.
	excluded := make(map[int]bool)

	switch r.state.Status {
	case track.StatusSearching:
		if len(faces) > 0 {
			r.acquire(ctx, frame, faces, excluded, stats)
		}
	case track.StatusTracking:
		r.follow(ctx, frame, faces, excluded, stats)
	}

	toMask := make([]detect.Detection, 0, len(faces))
	for i, f := range faces {
		if !excluded[i] {
			toMask = append(toMask, f)
		}
	}
	r.masker.Apply(frame, toMask)
	stats.AnonymizedFaces += len(toMask)
	if len(excluded) > 0 {
		stats.TargetPresentFrames++
	}
}

// acquire scans the frame for the target person and starts a tracker when
// the matcher clears the similarity threshold.
func (r *frameRun) acquire(ctx context.Context, frame *image.RGBA, faces []detect.Detection, excluded map[int]bool, stats *Stats) {
	match, err := r.matcher.FindTarget(ctx, frame, faces, r.persons(ctx, frame))
	if err != nil {
		r.processor.logf("warning: target matching failed, continuing without: %v", err)
		return
	}
	if match == nil {
		return
	}

	tr, region := track.Start(frame, match.FaceBox)
	r.state.StartTracking(tr, region, match.Score)
	r.excludeBox(faces, match.FaceBox, excluded)

	if r.opts.Debugging {
		r.processor.logf("target acquired, score %.3f, region %v", match.Score, region)
	}
}

// follow advances the tracker one frame and classifies this frame's face
// detections against the tracked region.
func (r *frameRun) follow(ctx context.Context, frame *image.RGBA, faces []detect.Detection, excluded map[int]bool, stats *Stats) {
	box, err := r.state.Track.Update(frame)
	if err != nil {
		// Tracker lost; recovery is the only path back.
		if !r.recover(frame, r.state.LastBox, faces, excluded, stats) {
			r.state.Reset()
			stats.Resets++
			if r.opts.Debugging {
				r.processor.logf("tracker lost and recovery failed, searching again")
			}
		}
		return
	}
	r.state.LastBox = box

	inRegion := inRegionFaces(box, faces)
	if r.opts.Debugging {
		r.processor.logf("tracking %v, %d face(s) in region, last score %.3f", box, len(inRegion), r.state.LastScore)
	}

	switch {
	case len(inRegion) == 1:
		excluded[inRegion[0]] = true
		r.state.FramesWithoutFace = 0

	case len(inRegion) > 1:
		// Several faces inside the region: only treat them all as the
		// target when at most one person overlaps the region at all.
		persons := detect.Persons(r.persons(ctx, frame), disambiguationPersonScore)
		overlapping := 0
		for _, p := range persons {
			if p.Box.Intersects(box) {
				overlapping++
			}
		}
		if overlapping <= 1 {
			for _, i := range inRegion {
				excluded[i] = true
			}
		}
		// Faces were present in the region either way.
		r.state.FramesWithoutFace = 0

	default:
		if r.recover(frame, box, faces, excluded, stats) {
			return
		}
		r.state.FramesWithoutFace++
		if r.policy.ShouldReset(r.state.FramesWithoutFace) {
			r.state.Reset()
			stats.Resets++
			if r.opts.Debugging {
				r.processor.logf("no face for %d frames, searching again", r.opts.MaxFramesWithoutFace)
			}
		}
	}
}

// recover tries to re-acquire the target from this frame's detections. On
// success the tracker is reseeded at the recovered detection and that
// detection is excluded from anonymization.
func (r *frameRun) recover(frame *image.RGBA, lastBox geometry.Box, faces []detect.Detection, excluded map[int]bool, stats *Stats) bool {
	det, ok := track.Recover(lastBox, faces)
	if !ok {
		return false
	}

	tr, region := track.Start(frame, det.Box)
	r.state.StartTracking(tr, region, r.state.LastScore)
	r.excludeBox(faces, det.Box, excluded)
	stats.Recoveries++

	if r.opts.Debugging {
		r.processor.logf("track recovered at %v", det.Box)
	}
	return true
}

// excludeBox marks the face detection with the given box as the target.
func (r *frameRun) excludeBox(faces []detect.Detection, box geometry.Box, excluded map[int]bool) {
	for i, f := range faces {
		if f.Box == box {
			excluded[i] = true
			return
		}
	}
}

// inRegionFaces returns the indices of face detections whose containment
// ratio against the tracked region exceeds the threshold.
func inRegionFaces(region geometry.Box, faces []detect.Detection) []int {
	var in []int
	for i, f := range faces {
		if f.Box.ContainmentRatio(region) > containmentThreshold {
			in = append(in, i)
		}
	}
	return in
}
