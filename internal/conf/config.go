// config.go: This file contains the configuration for the ambientscribe capture core.
// It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// CaptureSettings contains settings for the audio capture engine.
type CaptureSettings struct {
	Source           string // audio capture device ("default", device name or ID substring)
	RetentionSeconds int    // length of the retained trailing audio window in seconds
	ChunkBytes       int    // initial capture read size in bytes
	PurgeOnStop      bool   // purge retained audio automatically when capture stops
	Autotune         struct {
		Enabled        bool // true to enable chunk size autotuning
		MaxAdjustments int  // maximum number of chunk size adjustments per session
	}
	Export struct {
		Debug bool   // true to enable export debug logging
		Path  string // directory for WAV exports of the retained window
	}
}

// VADSettings contains settings for voice activity detection framing.
type VADSettings struct {
	FrameDurationMs int     // VAD frame length in milliseconds
	Threshold       float64 // normalized RMS energy above which a frame counts as voice
}

// DiarizationSettings contains settings for two-speaker diarization.
type DiarizationSettings struct {
	MinUtteranceMs     int     // minimum voice segment length before a speaker is assigned
	SwitchHysteresisMs int     // minimum dwell time between automatic speaker switches
	SilenceThresholdMs int     // silence length that ends an utterance
	EnergyRatio        float64 // energy vs baseline ratio that suggests a speaker change
	RoleALabel         string  // display label for the first speaker role
	RoleBLabel         string  // display label for the second speaker role
}

// QualitySettings contains settings for the diarization quality evaluator.
type QualitySettings struct {
	WindowMs          int     // grouping window for dominant speaker voting in milliseconds
	HistorySize       int     // number of recent assignments kept for evaluation
	MinSamples        int     // minimum assignments before an error rate is computed
	GoodThreshold     float64 // error rate at or below this is "good"
	ModerateThreshold float64 // error rate at or below this is "moderate"
	SwapAccuracyMin   float64 // swap correction accuracy below this triggers fallback
	FallbackSamples   int     // assignments to hold fallback mode before re-enabling
}

// TelemetrySettings contains settings for the Prometheus telemetry endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to expose a Prometheus metrics endpoint
	Listen  string // listen address and port of the telemetry endpoint
}

// LogSettings contains settings for the rotating file log.
type LogSettings struct {
	Enabled bool   // true to enable file logging
	Path    string // path of the log file
}

// Settings is the top level configuration container.
type Settings struct {
	Debug bool // true to enable debug output

	Main struct {
		Name string      // name of this node, used to identify sessions
		Log  LogSettings // file logging settings
	}

	Capture     CaptureSettings
	VAD         VADSettings
	Diarization DiarizationSettings
	Quality     QualitySettings
	Telemetry   TelemetrySettings
}

// Load reads the configuration into a Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// initViper sets up viper defaults, search paths and reads the config file,
// creating a default one if none exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, create from embedded default
		return createDefaultConfig(configPaths[0])
	}

	return nil
}

// createDefaultConfig writes the embedded default config.yaml to the first
// config path and loads it.
func createDefaultConfig(configPath string) error {
	configFilePath := filepath.Join(configPath, "config.yaml")

	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configFilePath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	log.Printf("Created default config file at %s", configFilePath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the config file search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	return []string{
		filepath.Join(homeDir, ".config", "ambientscribe"),
		".",
	}, nil
}

// SaveAs writes the current settings to the given path as YAML.
func (s *Settings) SaveAs(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks settings for values the capture core cannot work with.
func (s *Settings) Validate() error {
	if s.Capture.RetentionSeconds <= 0 {
		return fmt.Errorf("capture.retentionseconds must be greater than 0, got %d", s.Capture.RetentionSeconds)
	}
	if s.Capture.ChunkBytes <= 0 || s.Capture.ChunkBytes%BytesPerSample != 0 {
		return fmt.Errorf("capture.chunkbytes must be a positive multiple of %d, got %d", BytesPerSample, s.Capture.ChunkBytes)
	}
	if s.VAD.FrameDurationMs <= 0 {
		return fmt.Errorf("vad.framedurationms must be greater than 0, got %d", s.VAD.FrameDurationMs)
	}
	if s.VAD.Threshold < 0 || s.VAD.Threshold > 1 {
		return fmt.Errorf("vad.threshold must be within [0,1], got %f", s.VAD.Threshold)
	}
	if s.Quality.ModerateThreshold < s.Quality.GoodThreshold {
		return fmt.Errorf("quality.moderatethreshold (%f) must not be below quality.goodthreshold (%f)",
			s.Quality.ModerateThreshold, s.Quality.GoodThreshold)
	}
	if s.Quality.MinSamples <= 0 {
		return fmt.Errorf("quality.minsamples must be greater than 0, got %d", s.Quality.MinSamples)
	}
	return nil
}
