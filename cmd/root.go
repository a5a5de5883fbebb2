package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deface",
	Short: "A CLI tool for anonymizing faces in videos while preserving one target person",
	Long: `Deface anonymizes every face in a video except the face of a chosen
target person. The target is identified from a directory of reference images
via appearance re-identification, then followed across frames with a visual
tracker so the face stays unobscured through detection dropouts and crowds.

Detection and embedding extraction run in an inference sidecar (see
INFERENCE_URL); video decode and encode go through ffmpeg.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
