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

// Reader streams decoded frames from a video file. Frames arrive in display
// order as rgb24 planes on ffmpeg's stdout.
type Reader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	errout bytes.Buffer

	width  int
	height int
	buf    []byte
}

// NewReader starts an ffmpeg decode process for the file. Width and height
// must match the probed stream dimensions; ffmpeg emits exactly
// width*height*3 bytes per frame.
func NewReader(ctx context.Context, ffmpegPath, path string, width, height int) (*Reader, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	r := &Reader{
		cmd:    cmd,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
	cmd.Stderr = &r.errout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	r.stdout = stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg decode: %w", err)
	}
	return r, nil
}

// Next returns the next frame, or io.EOF after the last one. The returned
// image is freshly allocated; callers may mutate it freely.
func (r *Reader) Next() (*image.RGBA, error) {
	if _, err := io.ReadFull(r.stdout, r.buf); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated frame from ffmpeg: %s", strings.TrimSpace(r.errout.String()))
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	src := r.buf
	dst := frame.Pix
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
		dst[j+3] = 255
	}
	return frame, nil
}

// Close tears the decode process down. Safe after io.EOF; kills ffmpeg when
// the caller abandons the stream early.
func (r *Reader) Close() error {
	r.stdout.Close()
	err := r.cmd.Wait()
	if err != nil {
		// Broken pipe is expected on early abandonment.
		if strings.Contains(err.Error(), "broken pipe") || strings.Contains(err.Error(), "signal: killed") {
			return nil
		}
		return fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(r.errout.String()))
	}
	return nil
}
