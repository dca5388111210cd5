package ffmpeg

import (
	"errors"
	"fmt"
)

// Sentinel errors for the media tool adapter.
var (
	// ErrToolNotFound indicates the external media tool binary is missing.
	ErrToolNotFound = errors.New("media tool not found")

	// ErrExtractFailed indicates audio extraction produced no usable output.
	ErrExtractFailed = errors.New("audio extraction failed")
)

// BurnError carries the tool's stderr when subtitle burning fails.
type BurnError struct {
	ExitErr error
	Stderr  string
}

// Error implements the error interface.
func (e *BurnError) Error() string {
	stderr := e.Stderr
	if len(stderr) > 500 {
		stderr = stderr[len(stderr)-500:]
	}
	return fmt.Sprintf("subtitle burn failed: %v: %s", e.ExitErr, stderr)
}

// Unwrap returns the underlying exit error.
func (e *BurnError) Unwrap() error {
	return e.ExitErr
}
