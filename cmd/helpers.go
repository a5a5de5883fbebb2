package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/deface/internal/anonymize"
	"github.com/kozaktomas/deface/internal/config"
	"github.com/kozaktomas/deface/internal/detect"
	"github.com/kozaktomas/deface/internal/engine"
	"github.com/kozaktomas/deface/internal/reid"
	"github.com/kozaktomas/deface/internal/store"
)

// buildProcessor wires the engine to the inference sidecar and, when a
// storage backend is registered, the profile-embedding cache.
func buildProcessor(cfg *config.Config) *engine.Processor {
	client := detect.NewClient(cfg.Inference.URL, time.Duration(cfg.Inference.TimeoutSeconds)*time.Second)
	var cache engine.ProfileCache
	if c := store.Cache(); c != nil {
		cache = c
	}
	return engine.NewProcessor(client, client, client, cache)
}

// addProcessingFlags registers the shared anonymization and tracking flags
// on a processing command.
func addProcessingFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "", "Anonymization preset from the embedded defaults (default, solid, mosaic, preview)")
	cmd.Flags().String("replacewith", "blur", "Anonymization mode: blur, solid, mosaic, img, none")
	cmd.Flags().String("replaceimg", "", "Replacement image path for --replacewith img")
	cmd.Flags().Float64("mask-scale", 1.3, "Scale factor applied to each face box before masking")
	cmd.Flags().Int("mosaicsize", 20, "Mosaic cell size in pixels")
	cmd.Flags().Bool("boxes", false, "Blur full boxes instead of inscribed ellipses")
	cmd.Flags().Bool("draw-scores", false, "Overlay detection scores on masked regions (debug)")
	cmd.Flags().Float64("thresh", 0.4, "Face detection confidence threshold")
	cmd.Flags().Float64("reid-threshold", 0.7, "ReID similarity threshold for target acquisition")
	cmd.Flags().Int("max-frames-without-faces", 30, "Face-less frames tolerated before the tracker resets")
	cmd.Flags().Bool("disable-tracker-reset", false, "Never auto-reset the tracker on face starvation")
	cmd.Flags().Bool("keep-audio", false, "Copy the source audio track into the output")
	cmd.Flags().Bool("debugging", false, "Log per-frame tracking decisions")
}

// optionsFromFlags assembles engine options from the processing flags. A
// --preset provides the anonymization baseline; explicitly set flags win
// over the preset.
func optionsFromFlags(cmd *cobra.Command, cfg *config.Config) (engine.Options, error) {
	anonOpts := anonymize.Options{
		Mode:       anonymize.Mode(mustGetString(cmd, "replacewith")),
		MaskScale:  mustGetFloat64(cmd, "mask-scale"),
		Ellipse:    !mustGetBool(cmd, "boxes"),
		MosaicSize: mustGetInt(cmd, "mosaicsize"),
		DrawScores: mustGetBool(cmd, "draw-scores"),
	}

	if name := mustGetString(cmd, "preset"); name != "" {
		preset := cfg.GetPreset(name)
		if !cmd.Flags().Changed("replacewith") {
			anonOpts.Mode = anonymize.Mode(preset.Mode)
		}
		if !cmd.Flags().Changed("mask-scale") && preset.MaskScale > 0 {
			anonOpts.MaskScale = preset.MaskScale
		}
		if !cmd.Flags().Changed("boxes") {
			anonOpts.Ellipse = preset.Ellipse
		}
		if !cmd.Flags().Changed("mosaicsize") && preset.MosaicSize > 0 {
			anonOpts.MosaicSize = preset.MosaicSize
		}
		if !cmd.Flags().Changed("draw-scores") {
			anonOpts.DrawScores = preset.DrawScores
		}
	}

	if path := mustGetString(cmd, "replaceimg"); path != "" {
		img, err := reid.LoadImage(path)
		if err != nil {
			return engine.Options{}, fmt.Errorf("loading replacement image: %w", err)
		}
		anonOpts.ReplaceImage = img
	}

	return engine.Options{
		FaceThreshold:        mustGetFloat64(cmd, "thresh"),
		ReIDThreshold:        mustGetFloat64(cmd, "reid-threshold"),
		MaxFramesWithoutFace: mustGetInt(cmd, "max-frames-without-faces"),
		DisableTrackerReset:  mustGetBool(cmd, "disable-tracker-reset"),
		KeepAudio:            mustGetBool(cmd, "keep-audio"),
		Debugging:            mustGetBool(cmd, "debugging"),
		Anonymize:            anonOpts,
		FFmpegPath:           cfg.FFmpeg.FFmpegPath,
		FFprobePath:          cfg.FFmpeg.FFprobePath,
	}, nil
}
