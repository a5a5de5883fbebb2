package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
)

// WriterOptions configures the encode process.
type WriterOptions struct {
	Width  int
	Height int
	FPS    float64

	// AudioSource, when non-empty, names a file whose first audio stream is
	// copied into the output without re-encoding.
	AudioSource string
}

// Writer encodes frames into an H.264 file. Frames are written in call
// order; the output carries exactly the frames written before Close.
type Writer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	errout bytes.Buffer

	width  int
	height int
	buf    []byte
	closed bool
}

// NewWriter starts an ffmpeg encode process targeting the output path,
// overwriting any existing file.
func NewWriter(ctx context.Context, ffmpegPath, outPath string, opts WriterOptions) (*Writer, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", opts.Width, opts.Height)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 25
	}

	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%g", fps),
		"-i", "pipe:0",
	}
	if opts.AudioSource != "" {
		args = append(args,
			"-i", opts.AudioSource,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:a", "copy",
			"-shortest",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		outPath,
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	w := &Writer{
		cmd:    cmd,
		width:  opts.Width,
		height: opts.Height,
		buf:    make([]byte, opts.Width*opts.Height*3),
	}
	cmd.Stderr = &w.errout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	w.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg encode: %w", err)
	}
	return w, nil
}

// Write encodes one frame. The frame bounds must match the writer
// dimensions.
func (w *Writer) Write(frame *image.RGBA) error {
	b := frame.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("frame is %dx%d, writer expects %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}

	src := frame.Pix
	dst := w.buf
	for i, j := 0, 0; j < len(dst); i, j = i+4, j+3 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
	}

	if _, err := w.stdin.Write(dst); err != nil {
		return fmt.Errorf("write frame: %w: %s", err, strings.TrimSpace(w.errout.String()))
	}
	return nil
}

// Close flushes the stream and waits for ffmpeg to finish the file. Must be
// called on every exit path; the output is incomplete until Close returns
// nil. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, strings.TrimSpace(w.errout.String()))
	}
	return nil
}
