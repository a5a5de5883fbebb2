package detect

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/deface/internal/geometry"
)

// ReID model input dimensions (height x width), matching OSNet.
const (
	ReIDHeight = 256
	ReIDWidth  = 128
)

// EncodeJPEG encodes a frame for transport to the inference sidecar.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop copies the region of the frame described by the box, clipped to the
// frame bounds. Returns nil for degenerate regions.
func Crop(frame *image.RGBA, box geometry.Box) *image.RGBA {
	r := box.Rect().Intersect(frame.Bounds())
	if r.Empty() {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(out, image.Point{}, frame, r, draw.Src, nil)
	return out
}

// ResizeForReID letterboxes a crop onto a black ReIDWidth x ReIDHeight
// canvas, preserving aspect ratio, the way the ReID model expects its input.
func ResizeForReID(crop *image.RGBA) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, ReIDWidth, ReIDHeight))

	bounds := crop.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return canvas
	}

	scaleW := float64(ReIDWidth) / float64(w)
	scaleH := float64(ReIDHeight) / float64(h)
	scale := min(scaleW, scaleH)

	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	xOff := (ReIDWidth - newW) / 2
	yOff := (ReIDHeight - newH) / 2
	dst := image.Rect(xOff, yOff, xOff+newW, yOff+newH)
	draw.CatmullRom.Scale(canvas, dst, crop, bounds, draw.Src, nil)

	return canvas
}
