package anonymize

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// solidMasker fills the region with a constant color.
type solidMasker struct {
	color color.RGBA
}

func (m *solidMasker) mask(frame *image.RGBA, r image.Rectangle) {
	c := m.color
	c.A = 255
	draw.Draw(frame, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// blurMasker box-blurs the region with a kernel of roughly half the region
// dimension per axis. With ellipse set, only pixels inside the inscribed
// ellipse receive the blurred value, leaving corners untouched.
type blurMasker struct {
	ellipse bool
}

func (m *blurMasker) mask(frame *image.RGBA, r image.Rectangle) {
	blurred := boxBlur(frame, r, r.Dx()/2, r.Dy()/2)
	if blurred == nil {
		return
	}

	if !m.ellipse {
		draw.Copy(frame, r.Min, blurred, blurred.Bounds(), draw.Src, nil)
		return
	}

	// Copy back only pixels inside the ellipse inscribed in the region.
	w, h := r.Dx(), r.Dy()
	cx, cy := float64(w)/2, float64(h)/2
	rx, ry := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nx := (float64(x) + 0.5 - cx) / rx
			ny := (float64(y) + 0.5 - cy) / ry
			if nx*nx+ny*ny <= 1 {
				frame.SetRGBA(r.Min.X+x, r.Min.Y+y, blurred.RGBAAt(x, y))
			}
		}
	}
}

// boxBlur averages the region with the given kernel radii per axis using a
// summed-area table, so huge kernels stay O(pixels).
func boxBlur(frame *image.RGBA, r image.Rectangle, kw, kh int) *image.RGBA {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	if kw < 1 {
		kw = 1
	}
	if kh < 1 {
		kh = 1
	}

	// Summed-area table per channel, (w+1)x(h+1).
	stride := w + 1
	var sumR, sumG, sumB = make([]uint64, stride*(h+1)), make([]uint64, stride*(h+1)), make([]uint64, stride*(h+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := frame.RGBAAt(r.Min.X+x, r.Min.Y+y)
			i := (y+1)*stride + (x + 1)
			sumR[i] = uint64(px.R) + sumR[i-1] + sumR[i-stride] - sumR[i-stride-1]
			sumG[i] = uint64(px.G) + sumG[i-1] + sumG[i-stride] - sumG[i-stride-1]
			sumB[i] = uint64(px.B) + sumB[i-1] + sumB[i-stride] - sumB[i-stride-1]
		}
	}

	area := func(table []uint64, x1, y1, x2, y2 int) uint64 {
		return table[y2*stride+x2] - table[y1*stride+x2] - table[y2*stride+x1] + table[y1*stride+x1]
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	half := func(k int) int { return k / 2 }
	for y := 0; y < h; y++ {
		y1 := y - half(kh)
		y2 := y + kh - half(kh)
		if y1 < 0 {
			y1 = 0
		}
		if y2 > h {
			y2 = h
		}
		for x := 0; x < w; x++ {
			x1 := x - half(kw)
			x2 := x + kw - half(kw)
			if x1 < 0 {
				x1 = 0
			}
			if x2 > w {
				x2 = w
			}
			n := uint64((x2 - x1) * (y2 - y1))
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(area(sumR, x1, y1, x2, y2) / n),
				G: uint8(area(sumG, x1, y1, x2, y2) / n),
				B: uint8(area(sumB, x1, y1, x2, y2) / n),
				A: 255,
			})
		}
	}
	return out
}

// mosaicMasker partitions the region into fixed-size cells and recolors each
// cell with its origin pixel. Reads happen at cell origins only, so applying
// the mask twice yields identical pixels.
type mosaicMasker struct {
	size int
}

func (m *mosaicMasker) mask(frame *image.RGBA, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y += m.size {
		for x := r.Min.X; x < r.Max.X; x += m.size {
			c := frame.RGBAAt(x, y)
			cell := image.Rect(x, y, min(x+m.size, r.Max.X), min(y+m.size, r.Max.Y))
			draw.Draw(frame, cell, &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
}

// imageMasker resizes the replacement image to the region and draws it,
// alpha-compositing when the replacement carries transparency.
type imageMasker struct {
	img image.Image
}

func (m *imageMasker) mask(frame *image.RGBA, r image.Rectangle) {
	resized := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), m.img, m.img.Bounds(), draw.Src, nil)

	op := draw.Over
	if opaque, ok := m.img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		op = draw.Src
	}
	draw.Draw(frame, r, resized, image.Point{}, op)
}

// noneMasker leaves the pixels unchanged; it exists so score overlays can be
// rendered without obscuring anything.
type noneMasker struct{}

func (noneMasker) mask(*image.RGBA, image.Rectangle) {}
