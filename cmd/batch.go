package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/deface/internal/config"
	"github.com/kozaktomas/deface/internal/engine"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Anonymize a directory of videos, one target person per subfolder",
	Long: `Process every subfolder of <dir>. Each subfolder must contain exactly one
video file and a target/ directory with reference images of the person to
keep visible. The output is written next to the source video as
anonymized_<name>.

Folders that fail are reported and skipped; the command keeps going.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addProcessingFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	opts, err := optionsFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	root := args[0]
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading batch directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := buildProcessor(cfg)

	var done, failed, skipped int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if ctx.Err() != nil {
			fmt.Println("\nInterrupted.")
			break
		}

		folder := filepath.Join(root, entry.Name())
		video, err := findVideoFile(folder)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", entry.Name(), err)
			skipped++
			continue
		}

		targetDir := filepath.Join(folder, "target")
		if _, err := os.Stat(targetDir); err != nil {
			fmt.Printf("Skipping %s: no target/ directory\n", entry.Name())
			skipped++
			continue
		}

		output := filepath.Join(folder, "anonymized_"+filepath.Base(video))
		fmt.Printf("Processing %s\n", entry.Name())
		stats, err := processor.ProcessVideo(ctx, engine.Request{
			VideoPath:  video,
			TargetDir:  targetDir,
			OutputPath: output,
			Options:    opts,
			OnProgress: newProgressFunc(entry.Name()),
		})
		if err != nil {
			fmt.Printf("\nFailed %s: %v\n", entry.Name(), err)
			failed++
			continue
		}
		fmt.Printf("\n%s: %d frames, %d faces masked, target visible in %d frames\n",
			entry.Name(), stats.Frames, stats.AnonymizedFaces, stats.TargetPresentFrames)
		done++
	}

	fmt.Printf("\nBatch finished: %d processed, %d failed, %d skipped\n", done, failed, skipped)
	if failed > 0 {
		return fmt.Errorf("%d folder(s) failed", failed)
	}
	return nil
}

// findVideoFile returns the single video file in a folder, matching by
// extension. Already-anonymized outputs are ignored so reruns are safe.
func findVideoFile(folder string) (string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", err
	}

	var found []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "anonymized_") {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(name))] {
			found = append(found, filepath.Join(folder, name))
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("no video file found")
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("expected one video file, found %d", len(found))
	}
}
