// Package geometry provides bounding box math shared by the tracking and
// anonymization pipeline. Boxes use [x1, y1, x2, y2] corner coordinates in
// the same pixel space as the frame they were detected in.
package geometry

import (
	"image"
	"math"
)

// Box is an axis-aligned bounding box with corner coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// FromRect converts an image.Rectangle to a Box.
func FromRect(r image.Rectangle) Box {
	return Box{
		X1: float64(r.Min.X),
		Y1: float64(r.Min.Y),
		X2: float64(r.Max.X),
		Y2: float64(r.Max.Y),
	}
}

// Width returns the box width.
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the box height.
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Area returns the box area. Degenerate boxes have zero area.
func (b Box) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Center returns the center point of the box.
func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Scale expands the box about its center. Each side grows by
// (maskScale - 1) of the box dimension on that axis, so maskScale 1.3 on a
// 100x100 box adds 30 pixels to every side.
func (b Box) Scale(maskScale float64) Box {
	s := maskScale - 1.0
	w, h := b.Width(), b.Height()
	return Box{
		X1: math.Round(b.X1 - w*s),
		Y1: math.Round(b.Y1 - h*s),
		X2: math.Round(b.X2 + w*s),
		Y2: math.Round(b.Y2 + h*s),
	}
}

// Clip constrains the box to the frame dimensions [0, width) x [0, height).
func (b Box) Clip(width, height int) Box {
	return Box{
		X1: math.Max(0, b.X1),
		Y1: math.Max(0, b.Y1),
		X2: math.Min(float64(width-1), b.X2),
		Y2: math.Min(float64(height-1), b.Y2),
	}
}

// Intersection returns the overlapping region of two boxes. The result is
// degenerate (zero area) when the boxes do not overlap.
func (b Box) Intersection(o Box) Box {
	return Box{
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
		X2: math.Min(b.X2, o.X2),
		Y2: math.Min(b.Y2, o.Y2),
	}
}

// Intersects reports whether two boxes overlap at all, edge contact included.
func (b Box) Intersects(o Box) bool {
	return !(b.X2 < o.X1 || b.X1 > o.X2 || b.Y2 < o.Y1 || b.Y1 > o.Y2)
}

// ContainmentRatio returns the fraction of this box's area that lies inside
// the given region. A box fully inside yields 1.0, a disjoint box 0.0.
func (b Box) ContainmentRatio(region Box) float64 {
	area := b.Area()
	if area <= 0 {
		return 0
	}
	return b.Intersection(region).Area() / area
}

// IoU computes Intersection over Union between two boxes.
func IoU(a, b Box) float64 {
	intersection := a.Intersection(b).Area()
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Rect converts the box to an image.Rectangle, truncating coordinates.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}
