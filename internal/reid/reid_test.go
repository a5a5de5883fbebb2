package reid

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/geometry"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1.0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestNewProfileEmpty(t *testing.T) {
	if _, err := NewProfile(nil); err != ErrEmptyProfile {
		t.Errorf("NewProfile(nil) error = %v, want ErrEmptyProfile", err)
	}
	if _, err := NewProfile([]detect.Embedding{{}}); err != ErrEmptyProfile {
		t.Errorf("NewProfile with only empty embeddings error = %v, want ErrEmptyProfile", err)
	}
}

func TestProfileBestSimilarity(t *testing.T) {
	profile, err := NewProfile([]detect.Embedding{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	})
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}

	// Query closest to the first reference.
	score := profile.BestSimilarity(detect.Embedding{0.9, 0.1, 0, 0})
	expected := CosineSimilarity([]float32{0.9, 0.1, 0, 0}, []float32{1, 0, 0, 0})
	if math.Abs(score-expected) > 0.0001 {
		t.Errorf("BestSimilarity = %v, want %v", score, expected)
	}

	if got := profile.BestSimilarity(nil); got != 0 {
		t.Errorf("BestSimilarity(nil) = %v, want 0", got)
	}
}

func TestProfileMatchesThreshold(t *testing.T) {
	// A reference pointing along x; queries at controlled angles produce
	// exact similarity scores for the threshold check.
	profile, err := NewProfile([]detect.Embedding{{1, 0}})
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}

	tests := []struct {
		name      string
		score     float64
		threshold float64
		match     bool
	}{
		{"above threshold", 0.75, 0.7, true},
		{"below threshold", 0.65, 0.7, false},
		{"exactly at threshold", 0.7, 0.7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Build a query whose cosine against (1,0) equals tt.score.
			query := detect.Embedding{float32(tt.score), float32(math.Sqrt(1 - tt.score*tt.score))}
			ok, score := profile.Matches(query, tt.threshold)
			if math.Abs(score-tt.score) > 0.001 {
				t.Fatalf("score = %v, want %v", score, tt.score)
			}
			if ok != tt.match {
				t.Errorf("Matches at score %v threshold %v = %v, want %v", tt.score, tt.threshold, ok, tt.match)
			}
		})
	}
}

// fakeExtractor returns a canned embedding per call, keyed by call order.
type fakeExtractor struct {
	embeddings []detect.Embedding
	calls      int
}

func (f *fakeExtractor) ExtractEmbedding(_ context.Context, _ *image.RGBA) (detect.Embedding, error) {
	e := f.embeddings[f.calls%len(f.embeddings)]
	f.calls++
	return e, nil
}

func TestFindTarget(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	target := detect.Embedding{1, 0, 0}
	profile, err := NewProfile([]detect.Embedding{target})
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}

	persons := []detect.PersonDetection{
		{Box: geometry.Box{X1: 10, Y1: 10, X2: 160, Y2: 400}, ClassID: 0, Score: 0.9},
		{Box: geometry.Box{X1: 300, Y1: 10, X2: 450, Y2: 400}, ClassID: 0, Score: 0.9},
	}
	faces := []detect.Detection{
		{Box: geometry.Box{X1: 50, Y1: 20, X2: 110, Y2: 80}, Score: 0.8},   // inside person 0, near top
		{Box: geometry.Box{X1: 340, Y1: 20, X2: 400, Y2: 80}, Score: 0.85}, // inside person 1, near top
	}

	t.Run("highest scoring person wins", func(t *testing.T) {
		// Person 0 is a weak match, person 1 a strong one.
		extractor := &fakeExtractor{embeddings: []detect.Embedding{
			{0.8, 0.6, 0},
			{0.99, 0.1, 0},
		}}
		matcher := NewMatcher(profile, extractor, 0.7)
		match, err := matcher.FindTarget(context.Background(), frame, faces, persons)
		if err != nil {
			t.Fatalf("FindTarget failed: %v", err)
		}
		if match == nil {
			t.Fatal("expected a match")
		}
		if match.FaceBox != faces[1].Box {
			t.Errorf("matched face %v, want the second person's face", match.FaceBox)
		}
	})

	t.Run("no person clears threshold", func(t *testing.T) {
		extractor := &fakeExtractor{embeddings: []detect.Embedding{
			{0.5, 0.87, 0},
			{0.6, 0.8, 0},
		}}
		matcher := NewMatcher(profile, extractor, 0.7)
		match, err := matcher.FindTarget(context.Background(), frame, faces, persons)
		if err != nil {
			t.Fatalf("FindTarget failed: %v", err)
		}
		if match != nil {
			t.Errorf("expected no match, got score %v", match.Score)
		}
	})

	t.Run("match without attributable face is skipped", func(t *testing.T) {
		// Strong match on person 1 but no face inside that person box.
		facesOnlyFirst := faces[:1]
		extractor := &fakeExtractor{embeddings: []detect.Embedding{
			{0.5, 0.87, 0},
			{0.99, 0.1, 0},
		}}
		matcher := NewMatcher(profile, extractor, 0.7)
		match, err := matcher.FindTarget(context.Background(), frame, facesOnlyFirst, persons)
		if err != nil {
			t.Fatalf("FindTarget failed: %v", err)
		}
		if match != nil {
			t.Errorf("expected no match when the matched person has no face, got %v", match.FaceBox)
		}
	})

	t.Run("no persons in frame", func(t *testing.T) {
		extractor := &fakeExtractor{embeddings: []detect.Embedding{{1, 0, 0}}}
		matcher := NewMatcher(profile, extractor, 0.7)
		match, err := matcher.FindTarget(context.Background(), frame, faces, nil)
		if err != nil {
			t.Fatalf("FindTarget failed: %v", err)
		}
		if match != nil {
			t.Error("expected no match with no person detections")
		}
	})
}

func TestAttributeFace(t *testing.T) {
	person := geometry.Box{X1: 100, Y1: 100, X2: 300, Y2: 700}

	t.Run("largest valid face wins", func(t *testing.T) {
		faces := []detect.Detection{
			{Box: geometry.Box{X1: 150, Y1: 110, X2: 190, Y2: 150}},
			{Box: geometry.Box{X1: 140, Y1: 110, X2: 220, Y2: 190}},
		}
		face, ok := attributeFace(person, faces)
		if !ok {
			t.Fatal("expected a face")
		}
		if face.Box != faces[1].Box {
			t.Errorf("got %v, want the larger face", face.Box)
		}
	})

	t.Run("face too far below person top rejected", func(t *testing.T) {
		faces := []detect.Detection{
			// 40px tall face whose top is 200px below the person top.
			{Box: geometry.Box{X1: 150, Y1: 300, X2: 190, Y2: 340}},
		}
		if _, ok := attributeFace(person, faces); ok {
			t.Error("expected rejection of face far below the person top")
		}
	})

	t.Run("face outside person rejected", func(t *testing.T) {
		faces := []detect.Detection{
			{Box: geometry.Box{X1: 400, Y1: 110, X2: 440, Y2: 150}},
		}
		if _, ok := attributeFace(person, faces); ok {
			t.Error("expected rejection of face outside the person box")
		}
	})
}
