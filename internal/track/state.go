package track

import "github.com/kozaktomas/deface/internal/geometry"

// Status is the orchestrator's tracking state.
type Status int

const (
	// StatusSearching means no tracker is active and every frame is
	// scanned for the target person.
	StatusSearching Status = iota
	// StatusTracking means a tracker is active and the target is presumed
	// present inside the tracked region.
	StatusTracking
)

func (s Status) String() string {
	if s == StatusTracking {
		return "tracking"
	}
	return "searching"
}

// State is the cross-frame tracking state. It is exclusively owned and
// mutated by the frame-loop orchestrator; other components receive and
// return values instead of touching it.
type State struct {
	Status            Status
	Track             *Track
	LastBox           geometry.Box
	FramesWithoutFace int
	LastScore         float64
}

// StartTracking installs a new tracker handle, replacing any previous one
// wholesale. Exactly one tracker is active at a time.
func (s *State) StartTracking(t *Track, box geometry.Box, score float64) {
	s.Status = StatusTracking
	s.Track = t
	s.LastBox = box
	s.FramesWithoutFace = 0
	s.LastScore = score
}

// Reset discards the tracker and returns to the searching state.
func (s *State) Reset() {
	s.Status = StatusSearching
	s.Track = nil
	s.FramesWithoutFace = 0
}

// ResetPolicy decides when a starved track is forcibly discarded.
type ResetPolicy struct {
	// MaxFramesWithoutFace is how many consecutive face-less frames are
	// tolerated before the tracker is reset.
	MaxFramesWithoutFace int
	// Disabled turns auto-reset off entirely; useful when the target
	// never leaves the frame.
	Disabled bool
}

// ShouldReset reports whether the counter has exhausted the policy.
func (p ResetPolicy) ShouldReset(framesWithoutFace int) bool {
	return !p.Disabled && framesWithoutFace >= p.MaxFramesWithoutFace
}
