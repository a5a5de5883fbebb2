package geometry

import (
	"math"
	"testing"
)

func TestContainmentRatio(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		region   Box
		expected float64
	}{
		{
			name:     "fully contained",
			box:      Box{X1: 5, Y1: 5, X2: 15, Y2: 15},
			region:   Box{X1: 0, Y1: 0, X2: 20, Y2: 20},
			expected: 1.0,
		},
		{
			name:     "disjoint",
			box:      Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			region:   Box{X1: 20, Y1: 20, X2: 30, Y2: 30},
			expected: 0.0,
		},
		{
			name:     "half inside",
			box:      Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			region:   Box{X1: 5, Y1: 0, X2: 20, Y2: 10},
			expected: 0.5,
		},
		{
			name:     "quarter inside",
			box:      Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			region:   Box{X1: 5, Y1: 5, X2: 20, Y2: 20},
			expected: 0.25,
		},
		{
			name:     "degenerate box",
			box:      Box{X1: 5, Y1: 5, X2: 5, Y2: 5},
			region:   Box{X1: 0, Y1: 0, X2: 20, Y2: 20},
			expected: 0.0,
		},
		{
			name:     "region inside box",
			box:      Box{X1: 0, Y1: 0, X2: 20, Y2: 20},
			region:   Box{X1: 5, Y1: 5, X2: 15, Y2: 15},
			expected: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.box.ContainmentRatio(tt.region)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ContainmentRatio(%v, %v) = %v, want %v", tt.box, tt.region, result, tt.expected)
			}
		})
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name      string
		box       Box
		maskScale float64
		expected  Box
	}{
		{
			name:      "default mask scale",
			box:       Box{X1: 100, Y1: 100, X2: 200, Y2: 200},
			maskScale: 1.3,
			expected:  Box{X1: 70, Y1: 70, X2: 230, Y2: 230},
		},
		{
			name:      "identity",
			box:       Box{X1: 100, Y1: 100, X2: 200, Y2: 200},
			maskScale: 1.0,
			expected:  Box{X1: 100, Y1: 100, X2: 200, Y2: 200},
		},
		{
			name:      "non-square",
			box:       Box{X1: 0, Y1: 0, X2: 100, Y2: 50},
			maskScale: 1.5,
			expected:  Box{X1: -50, Y1: -25, X2: 150, Y2: 75},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.box.Scale(tt.maskScale)
			if result != tt.expected {
				t.Errorf("Scale(%v, %v) = %v, want %v", tt.box, tt.maskScale, result, tt.expected)
			}
		})
	}
}

func TestClip(t *testing.T) {
	box := Box{X1: -20, Y1: -10, X2: 700, Y2: 500}
	clipped := box.Clip(640, 480)
	expected := Box{X1: 0, Y1: 0, X2: 639, Y2: 479}
	if clipped != expected {
		t.Errorf("Clip = %v, want %v", clipped, expected)
	}

	inside := Box{X1: 10, Y1: 10, X2: 100, Y2: 100}
	if got := inside.Clip(640, 480); got != inside {
		t.Errorf("Clip of interior box = %v, want unchanged", got)
	}
}

func TestIntersects(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Box
		expected bool
	}{
		{"overlapping", Box{0, 0, 10, 10}, Box{5, 5, 15, 15}, true},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 30, 30}, false},
		{"edge contact", Box{0, 0, 10, 10}, Box{10, 0, 20, 10}, true},
		{"contained", Box{0, 0, 20, 20}, Box{5, 5, 15, 15}, true},
		{"disjoint vertically", Box{0, 0, 10, 10}, Box{0, 20, 10, 30}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersects(tt.b); got != tt.expected {
				t.Errorf("Intersects(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Box
		expected float64
	}{
		{"identical", Box{0, 0, 10, 10}, Box{0, 0, 10, 10}, 1.0},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 30, 30}, 0.0},
		{"partial overlap", Box{0, 0, 10, 10}, Box{5, 5, 15, 15}, 25.0 / 175.0},
		{"one inside other", Box{0, 0, 20, 20}, Box{5, 5, 15, 15}, 100.0 / 400.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("IoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}
