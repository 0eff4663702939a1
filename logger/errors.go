package logger

import (
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every configuration error of this package
var ErrInvalidConfig = fmt.Errorf("logger: invalid config")

// ErrBuildLogger wraps a zap build failure
func ErrBuildLogger(err error) error {
	return fmt.Errorf("logger: build: %w", err)
}

// ErrInvalidLevel reports an unknown level
func ErrInvalidLevel(level string, err error) error {
	return fmt.Errorf("%w: level %q: %w", ErrInvalidConfig, level, err)
}

// ErrInvalidEncoding reports an unknown encoding
func ErrInvalidEncoding(encoding string) error {
	return fmt.Errorf("%w: encoding %q, want one of %s", ErrInvalidConfig, encoding, strings.Join(validEncodings, ", "))
}
