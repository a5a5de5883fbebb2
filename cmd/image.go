package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/deface/internal/config"
	"github.com/kozaktomas/deface/internal/engine"
)

var imageCmd = &cobra.Command{
	Use:   "image <image> <output>",
	Short: "Anonymize faces in a single image",
	Long: `Anonymize every face in a still image. With --target-dir, the target
person's face is identified from the reference images and left visible;
without it, every detected face is masked.`,
	Args: cobra.ExactArgs(2),
	RunE: runImage,
}

func init() {
	rootCmd.AddCommand(imageCmd)
	addProcessingFlags(imageCmd)
	imageCmd.Flags().String("target-dir", "", "Directory of reference images of the person to keep visible")
}

func runImage(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	opts, err := optionsFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := buildProcessor(cfg)
	stats, err := processor.ProcessImage(ctx, engine.ImageRequest{
		ImagePath:  args[0],
		TargetDir:  mustGetString(cmd, "target-dir"),
		OutputPath: args[1],
		Options:    opts,
	})
	if err != nil {
		return fmt.Errorf("processing %s: %w", args[0], err)
	}

	fmt.Printf("Masked %d face(s), wrote %s\n", stats.AnonymizedFaces, args[1])
	return nil
}
