// Package capture drives a wavsink.Writer from the control side: it starts
// and stops sessions, drains sink errors into logs and metrics, and runs
// audio sources against the sink.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/myuon/audiosink/wavsink"
	"go.uber.org/zap"
)

// Status is a snapshot of the capture for display.
type Status struct {
	Path         string
	Exists       bool
	InProgress   bool
	State        wavsink.State
	BytesWritten int64
}

// Summary describes a stopped capture.
type Summary struct {
	Info          *wavsink.Info
	BytesWritten  int64
	SinkErrors    int64
	DroppedErrors int64
	Elapsed       time.Duration
}

// Controller owns the control-plane side of one writer.
type Controller struct {
	writer  *wavsink.Writer
	sink    *wavsink.Sink
	logger  *zap.Logger
	metrics *Metrics

	mu         sync.Mutex
	started    time.Time
	drainDone  chan struct{}
	drainStop  chan struct{}
	sinkErrors atomic.Int64
	dropped    int64 // sink drop count at Start
}

// NewController wraps w. errorQueue bounds the errors buffered between the
// capture goroutine and the logger; metrics may be nil.
func NewController(w *wavsink.Writer, errorQueue int, logger *zap.Logger, metrics *Metrics) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		writer:  w,
		sink:    wavsink.NewSink(w, errorQueue),
		logger:  logger,
		metrics: metrics,
	}
}

// Sink is the capability handed to the audio pipeline.
func (c *Controller) Sink() wavsink.SampleSink {
	return c.sink
}

// Start opens a new session and begins draining sink errors.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopDrain()
	if err := c.writer.Open(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	c.started = time.Now()
	c.sinkErrors.Store(0)
	c.dropped = c.sink.DroppedErrors()
	c.drainStop = make(chan struct{})
	c.drainDone = make(chan struct{})
	go c.drain(c.drainStop, c.drainDone)

	if c.metrics != nil {
		c.metrics.SessionsStarted.Inc()
	}
	c.syncInProgress()
	c.logger.Info("capture started", zap.String("path", c.writer.Path()))
	return nil
}

// Stop finalizes the session and returns a summary of the finished file.
// When finalize fails the session stays open and Stop may be called again.
func (c *Controller) Stop() (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	begin := time.Now()
	err := c.writer.Finalize()
	c.syncInProgress()
	if err != nil {
		if c.metrics != nil && !errors.Is(err, wavsink.ErrSessionNotOpen) {
			c.metrics.FinalizeFailures.Inc()
		}
		return nil, fmt.Errorf("stop capture: %w", err)
	}
	if c.metrics != nil {
		c.metrics.FinalizeDuration.Observe(time.Since(begin).Seconds())
	}
	c.stopDrain()

	summary := &Summary{
		BytesWritten:  c.writer.BytesWritten(),
		SinkErrors:    c.sinkErrors.Load(),
		DroppedErrors: c.sink.DroppedErrors() - c.dropped,
		Elapsed:       time.Since(c.started),
	}
	if c.metrics != nil {
		c.metrics.SessionsFinalized.Inc()
		c.metrics.BytesWritten.Add(float64(summary.BytesWritten))
		c.metrics.ErrorsDropped.Add(float64(summary.DroppedErrors))
	}

	info, err := wavsink.Inspect(c.writer.Path())
	if err != nil {
		return summary, fmt.Errorf("inspect capture: %w", err)
	}
	summary.Info = info

	c.logger.Info("capture stopped",
		zap.String("path", info.Path),
		zap.Int64("bytes_written", summary.BytesWritten),
		zap.Duration("audio", info.Duration),
		zap.Int64("sink_errors", summary.SinkErrors),
		zap.Int64("dropped_errors", summary.DroppedErrors))
	return summary, nil
}

// Record runs src against the sink between Start and Stop. The session is
// finalized even when the source fails.
func (c *Controller) Record(ctx context.Context, src Source) (*Summary, error) {
	if err := c.Start(); err != nil {
		return nil, err
	}
	runErr := src.Run(ctx, c.sink)
	if runErr != nil {
		c.logger.Error("audio source failed", zap.Error(runErr))
	}
	summary, stopErr := c.Stop()
	if runErr != nil {
		runErr = fmt.Errorf("audio source: %w", runErr)
	}
	return summary, errors.Join(runErr, stopErr)
}

// Status reports the writer state and refreshes the in-progress gauge.
func (c *Controller) Status() Status {
	st := Status{
		Path:         c.writer.Path(),
		Exists:       c.writer.Exists(),
		InProgress:   c.writer.InProgress(),
		State:        c.writer.State(),
		BytesWritten: c.writer.BytesWritten(),
	}
	c.setInProgress(st.InProgress)
	return st
}

// syncInProgress mirrors Writer.InProgress into the gauge. A session only
// counts once its header is on its way to disk.
func (c *Controller) syncInProgress() {
	c.setInProgress(c.writer.InProgress())
}

func (c *Controller) setInProgress(v bool) {
	if c.metrics == nil {
		return
	}
	if v {
		c.metrics.InProgress.Set(1)
	} else {
		c.metrics.InProgress.Set(0)
	}
}

func (c *Controller) drain(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case err := <-c.sink.Errors():
			c.handleSinkError(err)
		case <-stop:
			for {
				select {
				case err := <-c.sink.Errors():
					c.handleSinkError(err)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) handleSinkError(err error) {
	reason := rejectReason(err)
	if c.metrics != nil {
		c.metrics.BuffersRejected.WithLabelValues(reason).Inc()
	}
	c.sinkErrors.Add(1)
	c.logger.Warn("sample buffer dropped", zap.String("reason", reason), zap.Error(err))
}

// stopDrain waits for the drain goroutine to flush queued errors. Callers hold mu.
func (c *Controller) stopDrain() {
	if c.drainStop == nil {
		return
	}
	close(c.drainStop)
	<-c.drainDone
	c.drainStop, c.drainDone = nil, nil
}
