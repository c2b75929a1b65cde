package wavsink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// State is the lifecycle position of a capture session.
type State int

const (
	StateIdle State = iota
	StateHeaderPending
	StateWriting
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderPending:
		return "header-pending"
	case StateWriting:
		return "writing"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const defaultBufferSize = 64 * 1024

type session struct {
	state        State
	format       Format
	bytesWritten int64
	// flushFailed is set once buffered payload may have been lost.
	flushFailed bool
}

// Writer streams PCM buffers into a single WAVE file whose size is unknown
// until Finalize. All operations are serialized on one mutex, so Write may
// be called from an audio callback while Open and Finalize run elsewhere.
type Writer struct {
	mu sync.Mutex

	path       string
	fallback   Format
	bufferSize int
	logger     *zap.Logger

	session session
	file    *os.File
	out     *bufio.Writer
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger used for session lifecycle messages.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithFallbackFormat sets the format written when a session is finalized
// before any sample arrived.
func WithFallbackFormat(f Format) Option {
	return func(w *Writer) { w.fallback = f }
}

// WithBufferSize sets the size of the in-memory write buffer in front of
// the file.
func WithBufferSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.bufferSize = n
		}
	}
}

// NewWriter returns an idle writer for the file at path.
func NewWriter(path string, opts ...Option) *Writer {
	w := &Writer{
		path:       path,
		fallback:   DefaultFormat,
		bufferSize: defaultBufferSize,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("path", path))
	return w
}

// Path returns the full path of the output file.
func (w *Writer) Path() string {
	return w.path
}

// Open starts a new session, discarding whatever file was at the path.
func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		w.logger.Warn("discarding unfinished session",
			zap.Stringer("state", w.session.state),
			zap.Int64("bytes_written", w.session.bytesWritten))
		w.closeStream()
	}
	w.session = session{state: StateIdle}

	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioErr("remove", w.path, err)
	}
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		return ioErr("create", w.path, err)
	}

	w.file = f
	w.out = bufio.NewWriterSize(f, w.bufferSize)
	w.session.state = StateHeaderPending
	w.logger.Debug("capture session opened")
	return nil
}

// Write appends one buffer of samples. The header is written in front of
// the first buffer of a session, using that buffer's format; later buffers
// are appended verbatim whatever format they declare.
func (w *Writer) Write(p []byte, enc Encoding, sampleRate, channels int) error {
	f := Format{Encoding: enc, SampleRate: sampleRate, Channels: channels}
	if err := f.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.session.state {
	case StateHeaderPending, StateWriting:
	default:
		return fmt.Errorf("%w: write in state %s", ErrSessionNotOpen, w.session.state)
	}
	if w.out == nil {
		// A failed Finalize already closed the stream.
		return fmt.Errorf("%w: stream closed", ErrSessionNotOpen)
	}
	if len(p) == 0 {
		return nil
	}

	if HeaderSize+w.session.bytesWritten+int64(len(p)) > maxRIFFSize {
		return fmt.Errorf("%w: %d payload bytes already written", ErrFileTooLarge, w.session.bytesWritten)
	}

	if w.session.state == StateHeaderPending {
		if err := w.writeHeader(f); err != nil {
			return err
		}
	} else if f != w.session.format {
		w.logger.Debug("buffer format differs from session format",
			zap.Stringer("session", w.session.format), zap.Stringer("buffer", f))
	}

	if _, err := w.out.Write(p); err != nil {
		return ioErr("write", w.path, err)
	}
	w.session.bytesWritten += int64(len(p))
	return nil
}

func (w *Writer) writeHeader(f Format) error {
	h, err := NewHeader(f)
	if err != nil {
		return err
	}
	if _, err := h.WriteTo(w.out); err != nil {
		return ioErr("write header", w.path, err)
	}
	w.session.format = f
	w.session.state = StateWriting
	w.logger.Info("capture format established", zap.Stringer("format", f))
	return nil
}

// Finalize flushes and closes the stream and patches both size fields to
// match the file length. A session that never received a sample becomes a
// 44-byte file with an empty data chunk. On failure the session stays in
// StateWriting and Finalize may be retried.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.session.state {
	case StateHeaderPending:
		if err := w.writeHeader(w.fallback); err != nil {
			w.closeStream()
			w.session.state = StateWriting
			return err
		}
	case StateWriting:
	default:
		return fmt.Errorf("%w: finalize in state %s", ErrSessionNotOpen, w.session.state)
	}

	if w.file != nil {
		flushErr := w.out.Flush()
		closeErr := w.file.Close()
		w.file, w.out = nil, nil
		if flushErr != nil {
			w.session.flushFailed = true
		}
		if err := errors.Join(flushErr, closeErr); err != nil {
			return ioErr("flush", w.path, err)
		}
	}

	length, err := w.patch()
	if err != nil {
		return err
	}

	payload := length - HeaderSize
	if w.session.flushFailed && payload != w.session.bytesWritten {
		// The header is consistent with the file, but accepted samples are missing.
		return ioErr("finalize", w.path,
			fmt.Errorf("%d of %d accepted payload bytes reached disk", payload, w.session.bytesWritten))
	}
	w.session.state = StateFinalized
	if payload != w.session.bytesWritten {
		w.logger.Warn("payload size differs from bytes accepted",
			zap.Int64("file_payload", payload),
			zap.Int64("bytes_written", w.session.bytesWritten))
	}
	w.logger.Info("capture session finalized",
		zap.Int64("file_length", length),
		zap.Int64("bytes_written", w.session.bytesWritten))
	return nil
}

func (w *Writer) patch() (length int64, err error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return 0, ioErr("stat", w.path, err)
	}
	length = fi.Size()
	if length < HeaderSize {
		return 0, ioErr("patch", w.path, fmt.Errorf("file is %d bytes, shorter than header", length))
	}
	if length > maxRIFFSize {
		return 0, ioErr("patch", w.path, ErrFileTooLarge)
	}

	f, err := os.OpenFile(w.path, os.O_WRONLY, 0)
	if err != nil {
		return 0, ioErr("open", w.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ioErr("close", w.path, cerr)
		}
	}()

	if err := patchSizes(f, length); err != nil {
		return 0, ioErr("patch", w.path, err)
	}
	return length, nil
}

// closeStream releases the open file without flushing. Callers hold mu.
func (w *Writer) closeStream() {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			w.logger.Warn("close output file", zap.Error(err))
		}
	}
	w.file, w.out = nil, nil
}

// Exists reports whether a file is present at the output path. It says
// nothing about whether the file is complete.
func (w *Writer) Exists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// InProgress reports whether the session has written its header and has
// not been finalized.
func (w *Writer) InProgress() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.state == StateWriting
}

// State returns the lifecycle position of the current session.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.state
}

// BytesWritten returns the payload bytes accepted in the current session.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.bytesWritten
}

// Format returns the session format and whether it has been established.
func (w *Writer) Format() (Format, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.format, w.session.state == StateWriting || w.session.state == StateFinalized
}
