package engine

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/kozaktomas/deface/internal/anonymize"
	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/reid"
)

// ImageRequest is a single-image anonymization job. With a target directory
// set, the target person's face is left untouched; without one, every face
// is masked. No tracking is involved.
type ImageRequest struct {
	ImagePath  string
	TargetDir  string
	OutputPath string
	Options    Options
}

// ProcessImage anonymizes faces in a single image and writes the result as
// JPEG to the output path.
func (p *Processor) ProcessImage(ctx context.Context, req ImageRequest) (*Stats, error) {
	req.Options.applyDefaults()

	if _, err := os.Stat(req.ImagePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, req.ImagePath)
	}

	masker, err := anonymize.New(req.Options.Anonymize)
	if err != nil {
		return nil, err
	}

	var matcher *reid.Matcher
	if req.TargetDir != "" {
		if fi, err := os.Stat(req.TargetDir); err != nil || !fi.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrTargetDirNotFound, req.TargetDir)
		}
		profile, err := p.loadProfile(ctx, req.TargetDir)
		if err != nil {
			return nil, err
		}
		matcher = reid.NewMatcher(profile, p.embeddings, req.Options.ReIDThreshold)
	}

	frame, err := reid.LoadImage(req.ImagePath)
	if err != nil {
		return nil, err
	}

	faces, err := p.faces.DetectFaces(ctx, frame, req.Options.FaceThreshold)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	stats := &Stats{Frames: 1}
	toMask := faces
	if matcher != nil && len(faces) > 0 {
		persons, err := p.persons.DetectPersons(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detecting persons: %w", err)
		}
		match, err := matcher.FindTarget(ctx, frame, faces, persons)
		if err != nil {
			return nil, err
		}
		if match != nil {
			stats.TargetPresentFrames = 1
			toMask = make([]detect.Detection, 0, len(faces))
			for _, f := range faces {
				if f.Box != match.FaceBox {
					toMask = append(toMask, f)
				}
			}
		}
	}

	masker.Apply(frame, toMask)
	stats.AnonymizedFaces = len(toMask)

	if err := writeJPEG(req.OutputPath, frame); err != nil {
		return nil, err
	}
	return stats, nil
}

func writeJPEG(path string, frame *image.RGBA) error {
	data, err := detect.EncodeJPEG(frame)
	if err != nil {
		return fmt.Errorf("encoding output image: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing output image: %w", err)
	}
	return nil
}
