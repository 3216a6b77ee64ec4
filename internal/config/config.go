package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"extract-background/internal/logger"
	"extract-background/internal/models"

	"gopkg.in/yaml.v3"
)

// DefaultThresholds go from strict to permissive
var DefaultThresholds = []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0}

const (
	DefaultStep         = time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultStallTimeout = 5 * time.Second

	ClassifierSegmentation = "segmentation"
	ClassifierDifference   = "difference"
)

// FileConfig is the layout of a run configuration file
type FileConfig struct {
	Run        RunConfig        `yaml:"run" json:"run"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Output     OutputConfig     `yaml:"output" json:"output"`
}

type RunConfig struct {
	Width        int       `yaml:"width" json:"width"`
	Height       int       `yaml:"height" json:"height"`
	Duration     string    `yaml:"duration" json:"duration"`
	Start        string    `yaml:"start" json:"start"`
	End          string    `yaml:"end" json:"end"`
	Step         string    `yaml:"step" json:"step"`
	Concurrency  int       `yaml:"concurrency" json:"concurrency"`
	Thresholds   []float64 `yaml:"thresholds" json:"thresholds"`
	Debug        bool      `yaml:"debug" json:"debug"`
	PollInterval string    `yaml:"poll_interval" json:"poll_interval"`
	StallTimeout string    `yaml:"stall_timeout" json:"stall_timeout"`
}

type ClassifierConfig struct {
	Kind string `yaml:"kind" json:"kind"`
	// Model and ModelConfig are passed to the DNN loader
	Model       string `yaml:"model" json:"model"`
	ModelConfig string `yaml:"model_config" json:"model_config"`
	InputSize   int    `yaml:"input_size" json:"input_size"`
	// ForegroundClass is the output channel holding the person score
	ForegroundClass int `yaml:"foreground_class" json:"foreground_class"`
	// Reference is the empty-scene image used by the difference classifier
	Reference string `yaml:"reference" json:"reference"`
	BlurSize  int    `yaml:"blur_size" json:"blur_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type OutputConfig struct {
	Path       string `yaml:"path" json:"path"`
	Settlement string `yaml:"settlement" json:"settlement"`
}

// LoadFile reads a YAML or JSON configuration, chosen by extension
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate checks values that make sense on their own. Cross-field checks
// happen on the converted models.RunConfig.
func (f *FileConfig) Validate() error {
	r := f.Run

	if r.Width < 0 || r.Height < 0 {
		return models.NewValidationError("run.width/height", fmt.Sprintf("%dx%d", r.Width, r.Height), "must be non-negative")
	}
	if r.Concurrency < 0 {
		return models.NewValidationError("run.concurrency", r.Concurrency, "must be non-negative")
	}
	for _, th := range r.Thresholds {
		if th < 0 || th > 1 {
			return models.NewValidationError("run.thresholds", th, "must be between 0 and 1")
		}
	}
	for name, value := range map[string]string{
		"run.duration":      r.Duration,
		"run.start":         r.Start,
		"run.end":           r.End,
		"run.step":          r.Step,
		"run.poll_interval": r.PollInterval,
		"run.stall_timeout": r.StallTimeout,
	} {
		if _, err := parseDuration(value, 0); err != nil {
			return models.NewValidationError(name, value, err.Error())
		}
	}

	switch strings.ToLower(f.Classifier.Kind) {
	case "", ClassifierSegmentation, ClassifierDifference:
	default:
		return models.NewValidationError("classifier.kind", f.Classifier.Kind, "unknown classifier")
	}
	if f.Classifier.InputSize < 0 || f.Classifier.BlurSize < 0 {
		return models.NewValidationError("classifier.input_size", f.Classifier.InputSize, "sizes must be non-negative")
	}

	if _, err := logger.ParseLevel(f.Logging.Level); err != nil {
		return models.NewValidationError("logging.level", f.Logging.Level, err.Error())
	}
	switch strings.ToLower(f.Logging.Format) {
	case "", "console", "json":
	default:
		return models.NewValidationError("logging.format", f.Logging.Format, "must be console or json")
	}

	return nil
}

// ToRunConfig converts the file values, filling in defaults
func (f *FileConfig) ToRunConfig() (models.RunConfig, error) {
	r := f.Run
	config := DefaultRunConfig()

	if r.Width > 0 {
		config.Width = r.Width
	}
	if r.Height > 0 {
		config.Height = r.Height
	}
	if r.Concurrency > 0 {
		config.Concurrency = r.Concurrency
	}
	if len(r.Thresholds) > 0 {
		config.Thresholds = append([]float64(nil), r.Thresholds...)
	}
	config.Debug = r.Debug

	var err error
	if config.Duration, err = parseDuration(r.Duration, config.Duration); err != nil {
		return config, fmt.Errorf("invalid duration: %w", err)
	}
	if config.StartOffset, err = parseDuration(r.Start, config.StartOffset); err != nil {
		return config, fmt.Errorf("invalid start: %w", err)
	}
	if config.EndOffset, err = parseDuration(r.End, config.EndOffset); err != nil {
		return config, fmt.Errorf("invalid end: %w", err)
	}
	if config.PollInterval, err = parseDuration(r.PollInterval, config.PollInterval); err != nil {
		return config, fmt.Errorf("invalid poll interval: %w", err)
	}
	if config.StallTimeout, err = parseDuration(r.StallTimeout, config.StallTimeout); err != nil {
		return config, fmt.Errorf("invalid stall timeout: %w", err)
	}

	return config, nil
}

// SamplingStep returns the playback advance between sampled frames
func (f *FileConfig) SamplingStep() (time.Duration, error) {
	step, err := parseDuration(f.Run.Step, DefaultStep)
	if err != nil {
		return 0, fmt.Errorf("invalid step: %w", err)
	}
	if step <= 0 {
		return 0, models.NewValidationError("run.step", f.Run.Step, "must be positive")
	}
	return step, nil
}

// DefaultRunConfig returns the settings used for anything a file leaves out.
// Width and Height stay zero and are taken from the video.
func DefaultRunConfig() models.RunConfig {
	return models.RunConfig{
		Concurrency:  runtime.NumCPU(),
		Thresholds:   append([]float64(nil), DefaultThresholds...),
		PollInterval: DefaultPollInterval,
		StallTimeout: DefaultStallTimeout,
	}
}

// Default returns an empty file configuration
func Default() *FileConfig {
	return &FileConfig{
		Classifier: ClassifierConfig{Kind: ClassifierSegmentation},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
	}
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return d, nil
}
