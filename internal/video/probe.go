// Package video reads and writes video files by driving ffmpeg and ffprobe
// as subprocesses. Frames cross the process boundary as raw rgb24 over
// pipes, so no cgo or codec bindings are needed.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Info describes a video file.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	HasAudio   bool
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		NbReadFrames string `json:"nb_read_frames"`
	} `json:"streams"`
}

// Probe inspects the file with ffprobe. Frame counting decodes the whole
// stream, so probing a long video takes a while; callers that only need
// dimensions can ignore FrameCount being expensive since ffprobe does the
// counting in one pass anyway.
func Probe(ctx context.Context, ffprobePath, path string) (*Info, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-count_frames",
		"-show_streams",
		"-print_format", "json",
		path,
	)
	var out, errout bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(errout.String()))
	}

	var probed probeOutput
	if err := json.Unmarshal(out.Bytes(), &probed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &Info{}
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			if info.Width > 0 {
				continue // first video stream wins
			}
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.RFrameRate)
			if n, err := strconv.Atoi(s.NbReadFrames); err == nil {
				info.FrameCount = n
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("no video stream in %s", path)
	}
	return info, nil
}

// parseFrameRate converts ffprobe's rational rate ("30000/1001") to a float.
// Returns 0 for malformed input.
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
