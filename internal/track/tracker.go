// Package track owns the short-horizon appearance tracker that bridges
// frames between face detections, the track state the orchestrator threads
// through the frame loop, and the containment-based recovery engine.
package track

import (
	"errors"
	"image"
	"math"

	"github.com/kozaktomas/deface/internal/geometry"
)

// ErrTrackingLost is the sentinel returned by Update when the tracker's
// confidence falls below its internal threshold or the motion gate trips.
// It is an expected condition, routed through recovery - never fatal.
var ErrTrackingLost = errors.New("tracking lost")

const (
	// seedScale expands the matched face box into the tracked region:
	// a square of 2.5x the larger face dimension.
	seedScale = 2.5

	// maxMovementRatio limits per-frame displacement to this fraction of
	// the region width; larger jumps are treated as tracking loss.
	maxMovementRatio = 0.6

	// minPeakCorrelation is the internal confidence threshold. Peaks
	// below it report ErrTrackingLost.
	minPeakCorrelation = 0.35

	// refreshCorrelation is the confidence above which the appearance
	// template is refreshed at the new location.
	refreshCorrelation = 0.6

	// templateTargetDim controls the working resolution: frames are
	// downsampled so the template's larger side is about this many cells.
	templateTargetDim = 48
)

// Track is a single active tracker handle. It is exclusively owned by the
// orchestrator and replaced wholesale on reinitialization, never shared.
type Track struct {
	template []float32
	tw, th   int // template dimensions in downsampled cells
	factor   int // downsampling factor
	box      geometry.Box
}

// Start initializes a tracker seeded at the given face box. The seed is
// expanded to a square region of 2.5x the larger face dimension, centered on
// the face and clipped to the frame. Returns the handle and the region it
// will track.
func Start(frame *image.RGBA, seed geometry.Box) (*Track, geometry.Box) {
	w := float64(frame.Bounds().Dx())
	h := float64(frame.Bounds().Dy())

	cx, cy := seed.Center()
	side := math.Max(seed.Width(), seed.Height()) * seedScale

	x := math.Max(0, cx-side/2)
	y := math.Max(0, cy-side/2)
	side = math.Min(side, w-x)
	side = math.Min(side, h-y)

	region := geometry.Box{X1: math.Floor(x), Y1: math.Floor(y)}
	region.X2 = region.X1 + math.Floor(side)
	region.Y2 = region.Y1 + math.Floor(side)

	factor := int(math.Max(side, 1)) / templateTargetDim
	if factor < 1 {
		factor = 1
	}

	t := &Track{factor: factor, box: region}
	t.template, t.tw, t.th = sampleRegion(frame, region, factor)
	return t, region
}

// Update advances the tracker one frame and returns the new region box, or
// ErrTrackingLost. The region keeps its size; only its position moves. The
// wrapper never retries internally - recovery is the orchestrator's job.
func (t *Track) Update(frame *image.RGBA) (geometry.Box, error) {
	if len(t.template) == 0 {
		return geometry.Box{}, ErrTrackingLost
	}

	// Search window: the previous region grown by the maximum allowed
	// movement on every side, clipped to the frame.
	radius := t.box.Width() * maxMovementRatio
	search := geometry.Box{
		X1: t.box.X1 - radius,
		Y1: t.box.Y1 - radius,
		X2: t.box.X2 + radius,
		Y2: t.box.Y2 + radius,
	}.Clip(frame.Bounds().Dx(), frame.Bounds().Dy())

	gray, gw, gh := sampleRegion(frame, search, t.factor)
	dx, dy, peak := bestMatch(gray, gw, gh, t.template, t.tw, t.th)
	if peak < minPeakCorrelation {
		return geometry.Box{}, ErrTrackingLost
	}

	newX := search.X1 + float64(dx*t.factor)
	newY := search.Y1 + float64(dy*t.factor)

	moved := math.Hypot(newX-t.box.X1, newY-t.box.Y1)
	if moved > t.box.Width()*maxMovementRatio {
		return geometry.Box{}, ErrTrackingLost
	}

	w, h := t.box.Width(), t.box.Height()
	t.box = geometry.Box{X1: newX, Y1: newY, X2: newX + w, Y2: newY + h}

	if peak >= refreshCorrelation {
		t.template, t.tw, t.th = sampleRegion(frame, t.box, t.factor)
	}
	return t.box, nil
}

// Box returns the current tracked region.
func (t *Track) Box() geometry.Box {
	return t.box
}

// sampleRegion converts a frame region to downsampled grayscale cells.
func sampleRegion(frame *image.RGBA, box geometry.Box, factor int) ([]float32, int, int) {
	r := box.Rect().Intersect(frame.Bounds())
	w := r.Dx() / factor
	h := r.Dy() / factor
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}

	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := frame.RGBAAt(r.Min.X+x*factor, r.Min.Y+y*factor)
			// BT.601 luma.
			out[y*w+x] = 0.299*float32(px.R) + 0.587*float32(px.G) + 0.114*float32(px.B)
		}
	}
	return out, w, h
}

// bestMatch slides the template over the search patch and returns the offset
// (in cells) and value of the highest zero-mean normalized cross correlation.
func bestMatch(search []float32, sw, sh int, tmpl []float32, tw, th int) (int, int, float32) {
	if tw > sw || th > sh || tw == 0 || th == 0 {
		return 0, 0, -1
	}

	tMean := mean(tmpl)
	tNorm := float32(0)
	for _, v := range tmpl {
		d := v - tMean
		tNorm += d * d
	}
	if tNorm == 0 {
		return 0, 0, -1
	}

	bestX, bestY := 0, 0
	bestScore := float32(-1)
	for oy := 0; oy <= sh-th; oy++ {
		for ox := 0; ox <= sw-tw; ox++ {
			score := ncc(search, sw, ox, oy, tmpl, tw, th, tMean, tNorm)
			if score > bestScore {
				bestScore = score
				bestX, bestY = ox, oy
			}
		}
	}
	return bestX, bestY, bestScore
}

func ncc(search []float32, sw, ox, oy int, tmpl []float32, tw, th int, tMean, tNorm float32) float32 {
	var sSum float32
	for y := 0; y < th; y++ {
		row := (oy+y)*sw + ox
		for x := 0; x < tw; x++ {
			sSum += search[row+x]
		}
	}
	sMean := sSum / float32(tw*th)

	var dot, sNorm float32
	for y := 0; y < th; y++ {
		row := (oy+y)*sw + ox
		trow := y * tw
		for x := 0; x < tw; x++ {
			sd := search[row+x] - sMean
			td := tmpl[trow+x] - tMean
			dot += sd * td
			sNorm += sd * sd
		}
	}
	if sNorm == 0 {
		return -1
	}
	return dot / float32(math.Sqrt(float64(sNorm)*float64(tNorm)))
}

func mean(vs []float32) float32 {
	var sum float32
	for _, v := range vs {
		sum += v
	}
	return sum / float32(len(vs))
}
