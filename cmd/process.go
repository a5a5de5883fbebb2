package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/deface/internal/config"
	"github.com/kozaktomas/deface/internal/engine"
)

var processCmd = &cobra.Command{
	Use:   "process <video> <target-images-dir> <output>",
	Short: "Anonymize a video while keeping the target person's face visible",
	Long: `Anonymize every face in a video except the target person's.
The target is identified from the reference images in <target-images-dir>
(one or more photos showing the person) and followed across frames.

Examples:
  # Blur everyone except the person shown in ./alice/
  deface process input.mp4 ./alice output.mp4

  # Mosaic instead of blur, keep the original audio
  deface process input.mp4 ./alice output.mp4 --replacewith mosaic --keep-audio

  # Stricter identity matching
  deface process input.mp4 ./alice output.mp4 --reid-threshold 0.8`,
	Args: cobra.ExactArgs(3),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	addProcessingFlags(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	opts, err := optionsFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := buildProcessor(cfg)
	stats, err := processor.ProcessVideo(ctx, engine.Request{
		VideoPath:  args[0],
		TargetDir:  args[1],
		OutputPath: args[2],
		Options:    opts,
		OnProgress: newProgressFunc("Anonymizing"),
	})
	if err != nil {
		return fmt.Errorf("processing %s: %w", args[0], err)
	}

	printStats(stats)
	return nil
}

// newProgressFunc returns a per-frame progress callback backed by a terminal
// progress bar. The bar is created on the first call, once the total frame
// count is known.
func newProgressFunc(description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("frames"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}
}

func printStats(stats *engine.Stats) {
	fmt.Printf("\nDone.\n")
	fmt.Printf("  Frames:          %d\n", stats.Frames)
	fmt.Printf("  Masked faces:    %d\n", stats.AnonymizedFaces)
	fmt.Printf("  Target visible:  %d frames\n", stats.TargetPresentFrames)
	fmt.Printf("  Recoveries:      %d\n", stats.Recoveries)
	fmt.Printf("  Tracker resets:  %d\n", stats.Resets)
}
