package wavsink

import "sync/atomic"

// SampleSink receives audio buffers from a real-time pipeline. Implementations
// must not block the caller beyond a buffered append and report failures out
// of band.
type SampleSink interface {
	RenderSample(buf []byte, enc Encoding, sampleRate, channels int)
}

// Sink adapts a Writer to SampleSink. Write failures are queued on Errors;
// when the queue is full they are counted and discarded.
type Sink struct {
	w       *Writer
	errs    chan error
	dropped atomic.Int64
}

// NewSink returns a Sink that queues up to queue errors.
func NewSink(w *Writer, queue int) *Sink {
	if queue <= 0 {
		queue = 1
	}
	return &Sink{w: w, errs: make(chan error, queue)}
}

// RenderSample writes buf through the writer and queues any failure.
func (s *Sink) RenderSample(buf []byte, enc Encoding, sampleRate, channels int) {
	if err := s.w.Write(buf, enc, sampleRate, channels); err != nil {
		select {
		case s.errs <- err:
		default:
			s.dropped.Add(1)
		}
	}
}

// Errors returns the channel write failures are delivered on.
func (s *Sink) Errors() <-chan error {
	return s.errs
}

// DroppedErrors is the number of failures discarded because Errors was full.
func (s *Sink) DroppedErrors() int64 {
	return s.dropped.Load()
}

// Writer returns the underlying writer.
func (s *Sink) Writer() *Writer {
	return s.w
}
