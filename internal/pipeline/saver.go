package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"extract-background/internal/debug/timing"
	"extract-background/internal/logger"
)

// Saver writes reconstructed images
type Saver struct {
	logger logger.Logger
	timing *timing.Tracker
}

func NewSaver(log logger.Logger, tracker *timing.Tracker) *Saver {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Saver{logger: log, timing: tracker}
}

// FormatFromPath picks the encoder for a file name, defaulting to png
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	default:
		return "png"
	}
}

func (s *Saver) SaveToWriter(writer io.Writer, img image.Image, format string) error {
	if img == nil {
		return fmt.Errorf("no image data to save")
	}

	if s.timing != nil {
		ctx := s.timing.StartTiming(context.Background(), "save_image")
		defer s.timing.EndTiming(ctx)
	}

	bounds := img.Bounds()
	s.logger.Debug("ImageSaver", "saving image", map[string]interface{}{
		"format": format,
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
	})

	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	case "png", "":
		err = png.Encode(writer, img)
	default:
		s.logger.Warning("ImageSaver", "format not supported, using PNG", map[string]interface{}{
			"requested_format": strings.ToUpper(format),
		})
		err = png.Encode(writer, img)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

func (s *Saver) SaveToPath(path string, img image.Image) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	if err := s.SaveToWriter(file, img, FormatFromPath(path)); err != nil {
		return err
	}

	s.logger.Info("ImageSaver", "image saved", map[string]interface{}{
		"path": path,
	})
	return nil
}
