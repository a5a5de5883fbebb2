// Package anonymize obscures face detections in a frame buffer. The
// obfuscation style is a closed set of strategies selected once at
// configuration time, not dispatched per call.
package anonymize

import (
	"fmt"
	"image"
	"image/color"

	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/geometry"
)

// Mode names an obfuscation style.
type Mode string

// The supported obfuscation styles.
const (
	ModeBlur   Mode = "blur"
	ModeSolid  Mode = "solid"
	ModeMosaic Mode = "mosaic"
	ModeImage  Mode = "img"
	ModeNone   Mode = "none"
)

// Options configures the anonymizer.
type Options struct {
	Mode         Mode
	MaskScale    float64     // box expansion factor, default 1.3
	Ellipse      bool        // blur only inside the inscribed ellipse
	MosaicSize   int         // mosaic cell size in pixels, default 20
	OverlayColor color.RGBA  // fill color for solid mode
	ReplaceImage image.Image // overlay for img mode
	DrawScores   bool        // debug: render the detection score above the box
}

// masker applies one obfuscation style to a clipped frame region.
type masker interface {
	mask(frame *image.RGBA, r image.Rectangle)
}

// Anonymizer applies the configured style to every detection it is given.
type Anonymizer struct {
	opts   Options
	masker masker
}

// New validates the options and binds the style strategy.
func New(opts Options) (*Anonymizer, error) {
	if opts.MaskScale <= 0 {
		opts.MaskScale = 1.3
	}
	if opts.MosaicSize <= 0 {
		opts.MosaicSize = 20
	}

	var m masker
	switch opts.Mode {
	case ModeSolid:
		m = &solidMasker{color: opts.OverlayColor}
	case ModeBlur:
		m = &blurMasker{ellipse: opts.Ellipse}
	case ModeMosaic:
		m = &mosaicMasker{size: opts.MosaicSize}
	case ModeImage:
		if opts.ReplaceImage == nil {
			return nil, fmt.Errorf("mode %q requires a replacement image", opts.Mode)
		}
		m = &imageMasker{img: opts.ReplaceImage}
	case ModeNone:
		m = noneMasker{}
	default:
		return nil, fmt.Errorf("unknown anonymization mode %q", opts.Mode)
	}

	return &Anonymizer{opts: opts, masker: m}, nil
}

// Apply obscures every detection in the frame. Boxes are scaled about their
// center by the mask scale and clipped to the frame before masking.
func (a *Anonymizer) Apply(frame *image.RGBA, dets []detect.Detection) {
	b := frame.Bounds()
	for _, det := range dets {
		box := det.Box.Scale(a.opts.MaskScale).Clip(b.Dx(), b.Dy())
		r := box.Rect()
		if r.Empty() {
			continue
		}
		a.masker.mask(frame, r)
		if a.opts.DrawScores {
			drawScore(frame, r, det.Score)
		}
	}
}

// ApplyBox obscures a single raw region without score overlay. Used by the
// single-image path.
func (a *Anonymizer) ApplyBox(frame *image.RGBA, box geometry.Box) {
	b := frame.Bounds()
	r := box.Scale(a.opts.MaskScale).Clip(b.Dx(), b.Dy()).Rect()
	if !r.Empty() {
		a.masker.mask(frame, r)
	}
}
