package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/myuon/audiosink/wavsink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

func newTestController(t *testing.T) (*Controller, *Metrics) {
	t.Helper()
	w := wavsink.NewWriter(filepath.Join(t.TempDir(), "capture.wav"))
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewController(w, 8, zaptest.NewLogger(t), metrics), metrics
}

func TestControllerRecordTone(t *testing.T) {
	c, metrics := newTestController(t)
	src := &ToneSource{
		Format:    wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: 8000, Channels: 2},
		Frequency: 440,
		Frame:     10 * time.Millisecond,
		Frames:    100,
	}

	summary, err := c.Record(context.Background(), src)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	// 100 frames of 80 stereo 16-bit samples.
	const want = 100 * 80 * 4
	if summary.BytesWritten != want {
		t.Errorf("BytesWritten = %d, want %d", summary.BytesWritten, want)
	}
	info := summary.Info
	if info == nil || !info.Finalized {
		t.Fatalf("expected finalized file, got %+v", info)
	}
	if info.DataSize != want || info.Channels != 2 || info.SampleRate != 8000 {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", info.Duration)
	}

	if got := testutil.ToFloat64(metrics.SessionsStarted); got != 1 {
		t.Errorf("SessionsStarted = %v", got)
	}
	if got := testutil.ToFloat64(metrics.SessionsFinalized); got != 1 {
		t.Errorf("SessionsFinalized = %v", got)
	}
	if got := testutil.ToFloat64(metrics.BytesWritten); got != want {
		t.Errorf("BytesWritten metric = %v", got)
	}
	if got := testutil.ToFloat64(metrics.InProgress); got != 0 {
		t.Errorf("InProgress = %v", got)
	}

	st := c.Status()
	if !st.Exists || st.InProgress || st.State != wavsink.StateFinalized {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestControllerCountsRejectedBuffers(t *testing.T) {
	c, metrics := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	sink := c.Sink()
	sink.RenderSample([]byte{1, 2}, wavsink.EncodingPCM16, 8000, 1)
	sink.RenderSample([]byte{1, 2, 3}, wavsink.EncodingPCM8, 8000, 3)
	sink.RenderSample([]byte{1, 2, 3}, wavsink.EncodingInvalid, 8000, 1)

	if !c.Status().InProgress {
		t.Error("expected capture in progress")
	}

	summary, err := c.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if summary.SinkErrors != 2 {
		t.Errorf("SinkErrors = %d, want 2", summary.SinkErrors)
	}
	if summary.BytesWritten != 2 {
		t.Errorf("BytesWritten = %d, want 2", summary.BytesWritten)
	}
	if got := testutil.ToFloat64(metrics.BuffersRejected.WithLabelValues("unsupported_format")); got != 2 {
		t.Errorf("rejected unsupported_format = %v", got)
	}
}

func TestControllerStopWithoutStart(t *testing.T) {
	c, metrics := newTestController(t)
	if _, err := c.Stop(); !errors.Is(err, wavsink.ErrSessionNotOpen) {
		t.Errorf("Stop error = %v, want ErrSessionNotOpen", err)
	}
	if got := testutil.ToFloat64(metrics.FinalizeFailures); got != 0 {
		t.Errorf("FinalizeFailures = %v", got)
	}
}

func TestControllerStopImmediately(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	summary, err := c.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Info.FileSize != wavsink.HeaderSize || summary.Info.DataSize != 0 || !summary.Info.Finalized {
		t.Errorf("unexpected info %+v", summary.Info)
	}
}

func TestControllerInProgressGauge(t *testing.T) {
	c, metrics := newTestController(t)
	gauge := func() float64 { return testutil.ToFloat64(metrics.InProgress) }

	for _, step := range []struct {
		name string
		do   func()
		want float64
	}{
		{"stop without start", func() { c.Stop() }, 0},
		{"start", func() { c.Start() }, 0},
		{"first buffer", func() {
			c.Sink().RenderSample([]byte{1, 2}, wavsink.EncodingPCM16, 8000, 1)
			c.Status()
		}, 1},
		{"stop", func() { c.Stop() }, 0},
		{"stop again", func() { c.Stop() }, 0},
	} {
		step.do()
		if got := gauge(); got != step.want {
			t.Errorf("after %s: InProgress = %v, want %v", step.name, got, step.want)
		}
		if got, want := gauge() == 1, c.Status().InProgress; got != want {
			t.Errorf("after %s: gauge %v disagrees with Status().InProgress %v", step.name, got, want)
		}
	}
}

type failingSource struct{ frames int }

func (s failingSource) Run(ctx context.Context, sink wavsink.SampleSink) error {
	for i := 0; i < s.frames; i++ {
		sink.RenderSample(make([]byte, 4), wavsink.EncodingPCMFloat, 16000, 1)
	}
	return errors.New("device unplugged")
}

func TestControllerRecordFinalizesOnSourceError(t *testing.T) {
	c, _ := newTestController(t)
	summary, err := c.Record(context.Background(), failingSource{frames: 3})
	if err == nil {
		t.Fatal("expected source error")
	}
	if summary == nil || summary.Info == nil || !summary.Info.Finalized {
		t.Fatalf("expected finalized file, got %+v", summary)
	}
	if summary.Info.DataSize != 12 || summary.Info.BitsPerSample != 32 {
		t.Errorf("unexpected info %+v", summary.Info)
	}
}

func TestControllerFinalizeFailure(t *testing.T) {
	c, metrics := newTestController(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	c.Sink().RenderSample([]byte{1, 2}, wavsink.EncodingPCM16, 8000, 1)
	if err := os.Remove(c.Status().Path); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Stop(); !errors.Is(err, wavsink.ErrIO) {
		t.Fatalf("Stop error = %v, want ErrIO", err)
	}
	if got := testutil.ToFloat64(metrics.FinalizeFailures); got != 1 {
		t.Errorf("FinalizeFailures = %v", got)
	}
	if !c.Status().InProgress {
		t.Error("expected session to remain in progress after failed stop")
	}
	if got := testutil.ToFloat64(metrics.InProgress); got != 1 {
		t.Errorf("InProgress gauge after failed stop = %v, want 1", got)
	}

	// A new Start abandons the broken session.
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestControllerRecordRealtimeCancel(t *testing.T) {
	c, _ := newTestController(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	src := &ToneSource{
		Format:    wavsink.Format{Encoding: wavsink.EncodingPCM8, SampleRate: 8000, Channels: 1},
		Frequency: 1000,
		Frame:     5 * time.Millisecond,
		Realtime:  true,
	}
	summary, err := c.Record(ctx, src)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if summary.BytesWritten%40 != 0 {
		t.Errorf("BytesWritten = %d, not a whole number of frames", summary.BytesWritten)
	}
	if !summary.Info.Finalized {
		t.Error("expected finalized file")
	}
}
