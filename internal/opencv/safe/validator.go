package safe

import (
	"fmt"

	"gocv.io/x/gocv"
)

func ValidateMatForOperation(mat *Mat, operation string) error {
	if mat == nil {
		return fmt.Errorf("Mat is nil for operation: %s", operation)
	}

	if !mat.IsValid() {
		return fmt.Errorf("Mat is invalid for operation: %s", operation)
	}

	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}

	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}

	return nil
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d for operation: %s", width, height, operation)
	}

	if width > 32768 || height > 32768 {
		return fmt.Errorf("dimensions %dx%d exceed maximum size for operation: %s", width, height, operation)
	}

	return nil
}

// ValidateChannels checks a Mat has one of the accepted channel counts
func ValidateChannels(mat *Mat, operation string, accepted ...int) error {
	if err := ValidateMatForOperation(mat, operation); err != nil {
		return err
	}
	channels := mat.Channels()
	for _, c := range accepted {
		if channels == c {
			return nil
		}
	}
	return fmt.Errorf("unsupported channel count %d for operation: %s", channels, operation)
}

func ValidateMatType(mat *Mat, want gocv.MatType, operation string) error {
	if err := ValidateMatForOperation(mat, operation); err != nil {
		return err
	}
	if mat.Type() != want {
		return fmt.Errorf("MatType %d, want %d for operation: %s", int(mat.Type()), int(want), operation)
	}
	return nil
}
