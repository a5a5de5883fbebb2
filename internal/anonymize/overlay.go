package anonymize

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawScore renders the detection confidence above the masked region. Debug
// aid only; output correctness never depends on it.
func drawScore(frame *image.RGBA, r image.Rectangle, score float64) {
	label := fmt.Sprintf("%.2f", score)

	x := r.Min.X
	y := r.Min.Y - 6
	if y < basicfont.Face7x13.Ascent {
		y = r.Min.Y + basicfont.Face7x13.Ascent + 2
	}

	d := font.Drawer{
		Dst:  frame,
		Src:  image.NewUniform(color.RGBA{G: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}
