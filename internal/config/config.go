package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type Config struct {
	Inference InferenceConfig
	Database  DatabaseConfig
	Web       WebConfig
	FFmpeg    FFmpegConfig
	Presets   PresetsConfig
}

type InferenceConfig struct {
	URL            string // defaults to http://localhost:8000
	TimeoutSeconds int    // per-request timeout (default 60)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty disables the store
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	SharedDir string // directory exposed to API clients for inputs/outputs
}

type FFmpegConfig struct {
	FFmpegPath  string // defaults to "ffmpeg" on PATH
	FFprobePath string // defaults to "ffprobe" on PATH
}

type PresetsConfig struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Preset is a named anonymization style bundle selectable by name from the
// CLI and the API.
type Preset struct {
	Mode       string  `yaml:"mode"`
	MaskScale  float64 `yaml:"mask_scale"`
	Ellipse    bool    `yaml:"ellipse"`
	MosaicSize int     `yaml:"mosaic_size"`
	DrawScores bool    `yaml:"draw_scores"`
}

// GetPreset returns the named preset, falling back to "default".
func (c *Config) GetPreset(name string) Preset {
	if p, ok := c.Presets.Presets[name]; ok {
		return p
	}
	return c.Presets.Presets["default"]
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var presets PresetsConfig
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		// Embedded file, so this cannot happen with a valid build.
		panic("failed to unmarshal embedded presets.yaml: " + err.Error())
	}

	return &Config{
		Inference: InferenceConfig{
			URL:            os.Getenv("INFERENCE_URL"),
			TimeoutSeconds: envInt("INFERENCE_TIMEOUT_SECONDS", 60),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			SharedDir: os.Getenv("SHARED_DIR"),
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  os.Getenv("FFMPEG_PATH"),
			FFprobePath: os.Getenv("FFPROBE_PATH"),
		},
		Presets: presets,
	}
}
