package engine

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/kozaktomas/deface/internal/anonymize"
	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/geometry"
	"github.com/kozaktomas/deface/internal/reid"
	"github.com/kozaktomas/deface/internal/track"
)

type fakeFaceDetector struct {
	dets []detect.Detection
}

func (f *fakeFaceDetector) DetectFaces(context.Context, *image.RGBA, float64) ([]detect.Detection, error) {
	return f.dets, nil
}

type fakePersonDetector struct {
	dets  []detect.PersonDetection
	calls int
}

func (f *fakePersonDetector) DetectPersons(context.Context, *image.RGBA) ([]detect.PersonDetection, error) {
	f.calls++
	return f.dets, nil
}

// fakeExtractor returns the same embedding for every crop, so the profile
// similarity is fully controlled by the test.
type fakeExtractor struct {
	emb detect.Embedding
}

func (f *fakeExtractor) ExtractEmbedding(context.Context, *image.RGBA) (detect.Embedding, error) {
	return f.emb, nil
}

// embeddingWithSimilarity builds a unit vector whose cosine similarity
// against the profile vector {1, 0} equals score.
func embeddingWithSimilarity(score float64) detect.Embedding {
	return detect.Embedding{float32(score), float32(math.Sqrt(1 - score*score))}
}

// texturedFrame renders a deterministic pattern so the template tracker has
// something to correlate against.
func texturedFrame(w, h int) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*31 + y*17 + (x*y)%97) % 251)
			frame.SetRGBA(x, y, color.RGBA{R: v, G: v ^ 0x5a, B: v ^ 0xa5, A: 255})
		}
	}
	return frame
}

func flatFrame(w, h int) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	return frame
}

type testRig struct {
	run     *frameRun
	faces   *fakeFaceDetector
	persons *fakePersonDetector
	stats   *Stats
}

// newTestRig wires a frameRun with scripted collaborators. The extractor's
// similarity against the profile is fixed at score for every person crop.
func newTestRig(t *testing.T, score float64) *testRig {
	t.Helper()

	profile, err := reid.NewProfile([]detect.Embedding{{1, 0}})
	if err != nil {
		t.Fatalf("building profile: %v", err)
	}

	faces := &fakeFaceDetector{}
	persons := &fakePersonDetector{}
	extractor := &fakeExtractor{emb: embeddingWithSimilarity(score)}

	p := NewProcessor(faces, persons, extractor, nil)
	p.logf = func(string, ...any) {}

	opts := Options{}
	opts.applyDefaults()
	opts.Anonymize = anonymize.Options{Mode: anonymize.ModeNone}

	masker, err := anonymize.New(opts.Anonymize)
	if err != nil {
		t.Fatalf("building anonymizer: %v", err)
	}

	return &testRig{
		run: &frameRun{
			processor: p,
			matcher:   reid.NewMatcher(profile, extractor, opts.ReIDThreshold),
			masker:    masker,
			opts:      opts,
			policy: track.ResetPolicy{
				MaxFramesWithoutFace: opts.MaxFramesWithoutFace,
			},
		},
		faces:   faces,
		persons: persons,
		stats:   &Stats{},
	}
}

func (rig *testRig) step(frame *image.RGBA) {
	rig.run.step(context.Background(), frame, rig.stats)
	rig.stats.Frames++
}

// acquire seeds the rig into the tracking state with a single matched face.
func (rig *testRig) acquire(t *testing.T, frame *image.RGBA) {
	t.Helper()
	rig.faces.dets = []detect.Detection{
		{Box: geometry.Box{X1: 120, Y1: 60, X2: 160, Y2: 100}, Score: 0.9},
	}
	rig.persons.dets = []detect.PersonDetection{
		{Box: geometry.Box{X1: 100, Y1: 50, X2: 200, Y2: 230}, Score: 0.9},
	}
	rig.step(frame)
	if rig.run.state.Status != track.StatusTracking {
		t.Fatal("acquisition did not enter tracking state")
	}
}

func TestAcquisitionAboveThreshold(t *testing.T) {
	rig := newTestRig(t, 0.75)
	frame := texturedFrame(320, 240)

	rig.acquire(t, frame)

	if rig.stats.AnonymizedFaces != 0 {
		t.Errorf("acquired target was anonymized, %d masked face(s)", rig.stats.AnonymizedFaces)
	}
	if rig.stats.TargetPresentFrames != 1 {
		t.Errorf("TargetPresentFrames = %d, want 1", rig.stats.TargetPresentFrames)
	}
	if rig.run.state.LastScore != 0.75 {
		t.Errorf("LastScore = %v, want 0.75", rig.run.state.LastScore)
	}
}

func TestAcquisitionBelowThreshold(t *testing.T) {
	rig := newTestRig(t, 0.65)
	frame := texturedFrame(320, 240)

	rig.faces.dets = []detect.Detection{
		{Box: geometry.Box{X1: 120, Y1: 60, X2: 160, Y2: 100}, Score: 0.9},
	}
	rig.persons.dets = []detect.PersonDetection{
		{Box: geometry.Box{X1: 100, Y1: 50, X2: 200, Y2: 230}, Score: 0.9},
	}
	rig.step(frame)

	if rig.run.state.Status != track.StatusSearching {
		t.Error("state left searching despite the score missing the threshold")
	}
	if rig.stats.AnonymizedFaces != 1 {
		t.Errorf("AnonymizedFaces = %d, want 1 (no target means every face is masked)", rig.stats.AnonymizedFaces)
	}
}

func TestSingleInRegionFaceResetsCounter(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	rig.run.state.FramesWithoutFace = 17
	rig.step(frame)

	if rig.run.state.FramesWithoutFace != 0 {
		t.Errorf("FramesWithoutFace = %d, want 0 after an in-region face", rig.run.state.FramesWithoutFace)
	}
	if rig.stats.AnonymizedFaces != 0 {
		t.Error("in-region target face was anonymized")
	}
}

func TestStarvationResetsToSearching(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	rig.faces.dets = nil
	for i := 0; i < 29; i++ {
		rig.step(frame)
	}
	if rig.run.state.Status != track.StatusTracking {
		t.Fatalf("reset after %d face-less frames, want tolerance up to 30", rig.run.state.FramesWithoutFace)
	}

	rig.step(frame)
	if rig.run.state.Status != track.StatusSearching {
		t.Fatal("no reset after 30 face-less frames")
	}
	if rig.run.state.Track != nil {
		t.Error("tracker handle not discarded on reset")
	}
	if rig.stats.Resets != 1 {
		t.Errorf("Resets = %d, want 1", rig.stats.Resets)
	}
}

func TestStarvationResetDisabled(t *testing.T) {
	rig := newTestRig(t, 0.8)
	rig.run.policy.Disabled = true
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	rig.faces.dets = nil
	for i := 0; i < 100; i++ {
		rig.step(frame)
	}
	if rig.run.state.Status != track.StatusTracking {
		t.Error("disabled reset policy still discarded the tracker")
	}
}

func TestMultiFaceSinglePersonExcludesAll(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	// Both faces sit fully inside the tracked region around (140, 80).
	rig.faces.dets = []detect.Detection{
		{Box: geometry.Box{X1: 100, Y1: 40, X2: 120, Y2: 60}, Score: 0.9},
		{Box: geometry.Box{X1: 150, Y1: 90, X2: 170, Y2: 110}, Score: 0.9},
	}
	rig.persons.dets = []detect.PersonDetection{
		{Box: geometry.Box{X1: 90, Y1: 30, X2: 200, Y2: 230}, Score: 0.9},
	}

	before := rig.stats.AnonymizedFaces
	rig.step(frame)

	if got := rig.stats.AnonymizedFaces - before; got != 0 {
		t.Errorf("single-person group still masked %d face(s)", got)
	}
}

func TestMultiFaceMultiPersonMasksAll(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	rig.faces.dets = []detect.Detection{
		{Box: geometry.Box{X1: 100, Y1: 40, X2: 120, Y2: 60}, Score: 0.9},
		{Box: geometry.Box{X1: 150, Y1: 90, X2: 170, Y2: 110}, Score: 0.9},
	}
	// Two distinct persons overlap the tracked region: genuine crowding, so
	// every in-region face stays in the anonymization set.
	rig.persons.dets = []detect.PersonDetection{
		{Box: geometry.Box{X1: 90, Y1: 30, X2: 140, Y2: 230}, Score: 0.9},
		{Box: geometry.Box{X1: 145, Y1: 30, X2: 200, Y2: 230}, Score: 0.9},
	}

	before := rig.stats.AnonymizedFaces
	rig.step(frame)

	if got := rig.stats.AnonymizedFaces - before; got != 2 {
		t.Errorf("masked %d face(s), want 2 in the crowded case", got)
	}
}

func TestPersonDetectorMemoizedPerFrame(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	rig.faces.dets = []detect.Detection{
		{Box: geometry.Box{X1: 100, Y1: 40, X2: 120, Y2: 60}, Score: 0.9},
		{Box: geometry.Box{X1: 150, Y1: 90, X2: 170, Y2: 110}, Score: 0.9},
	}
	rig.persons.calls = 0
	rig.step(frame)

	if rig.persons.calls != 1 {
		t.Errorf("person detector called %d times in one frame, want 1", rig.persons.calls)
	}
}

func TestRecoveryAfterTrackerLoss(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	// A flat frame kills the template correlation; the in-region face
	// detection re-acquires the track.
	rig.faces.dets = []detect.Detection{
		{Box: geometry.Box{X1: 110, Y1: 50, X2: 150, Y2: 90}, Score: 0.9},
	}
	before := rig.stats.AnonymizedFaces
	rig.step(flatFrame(320, 240))

	if rig.run.state.Status != track.StatusTracking {
		t.Fatal("recovery did not keep the tracking state")
	}
	if rig.stats.Recoveries != 1 {
		t.Errorf("Recoveries = %d, want 1", rig.stats.Recoveries)
	}
	if got := rig.stats.AnonymizedFaces - before; got != 0 {
		t.Error("recovered target detection was anonymized")
	}
}

func TestTrackerLossWithoutRecoveryResets(t *testing.T) {
	rig := newTestRig(t, 0.8)
	frame := texturedFrame(320, 240)
	rig.acquire(t, frame)

	rig.faces.dets = nil
	rig.step(flatFrame(320, 240))

	if rig.run.state.Status != track.StatusSearching {
		t.Error("tracker loss with no recovery candidate must return to searching")
	}
	if rig.stats.Resets != 1 {
		t.Errorf("Resets = %d, want 1", rig.stats.Resets)
	}
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()

	if opts.FaceThreshold != 0.4 {
		t.Errorf("FaceThreshold = %v, want 0.4", opts.FaceThreshold)
	}
	if opts.ReIDThreshold != 0.7 {
		t.Errorf("ReIDThreshold = %v, want 0.7", opts.ReIDThreshold)
	}
	if opts.MaxFramesWithoutFace != 30 {
		t.Errorf("MaxFramesWithoutFace = %v, want 30", opts.MaxFramesWithoutFace)
	}
}
