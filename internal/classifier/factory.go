// Package classifier holds the OpenCV backed foreground classifiers.
package classifier

import (
	"fmt"
	"strings"

	"extract-background/internal/config"
	"extract-background/internal/logger"
	"extract-background/internal/models"
)

const component = "Classifier"

// NewFactory returns a factory building one classifier per worker from cfg.
// Frames are expected at width x height.
func NewFactory(cfg config.ClassifierConfig, width, height int, log logger.Logger) (models.ClassifierFactory, error) {
	if log == nil {
		log = logger.NoOp{}
	}

	switch strings.ToLower(cfg.Kind) {
	case "", config.ClassifierSegmentation:
		if cfg.Model == "" {
			return nil, models.NewValidationError("classifier.model", cfg.Model, "segmentation needs a model path")
		}
		return func(worker int) (models.Classifier, error) {
			log.Debug(component, "creating segmenter", map[string]interface{}{
				"worker": worker,
				"model":  cfg.Model,
			})
			return NewSegmenter(SegmenterConfig{
				Model:           cfg.Model,
				Config:          cfg.ModelConfig,
				InputSize:       cfg.InputSize,
				ForegroundClass: cfg.ForegroundClass,
				Width:           width,
				Height:          height,
			}), nil
		}, nil

	case config.ClassifierDifference:
		if cfg.Reference == "" {
			return nil, models.NewValidationError("classifier.reference", cfg.Reference, "difference needs a reference image")
		}
		return func(worker int) (models.Classifier, error) {
			log.Debug(component, "creating difference classifier", map[string]interface{}{
				"worker":    worker,
				"reference": cfg.Reference,
			})
			return NewDifference(DifferenceConfig{
				ReferencePath: cfg.Reference,
				BlurSize:      cfg.BlurSize,
				Width:         width,
				Height:        height,
			}), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Kind)
	}
}
