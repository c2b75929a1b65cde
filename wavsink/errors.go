package wavsink

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is matched by every filesystem failure the writer returns.
	ErrIO = errors.New("wavsink: i/o failure")

	// ErrUnsupportedFormat means the channel count, encoding or sample rate
	// of a buffer cannot be described by a PCM WAVE header.
	ErrUnsupportedFormat = errors.New("wavsink: unsupported format")

	// ErrSessionNotOpen means the operation is not allowed in the current state.
	ErrSessionNotOpen = errors.New("wavsink: session not open")

	// ErrFileTooLarge means accepting the buffer would overflow the 32-bit
	// RIFF size fields.
	ErrFileTooLarge = errors.New("wavsink: file exceeds RIFF size limit")
)

// IOError records a failed filesystem operation on the output file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wavsink: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
