package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/myuon/audiosink/wavsink"
)

// Source delivers audio buffers to a sink until ctx is done.
type Source interface {
	Run(ctx context.Context, sink wavsink.SampleSink) error
}

// ToneSource synthesizes a sine wave. It stands in for a capture device
// when none is available.
type ToneSource struct {
	Format    wavsink.Format
	Frequency float64
	Amplitude float64 // 0..1, defaults to 0.5
	Frame     time.Duration

	// Realtime paces frames at their playback duration. When false frames
	// are produced back to back and Frames bounds the run.
	Realtime bool
	Frames   int
}

func (s *ToneSource) Run(ctx context.Context, sink wavsink.SampleSink) error {
	if err := s.Format.Validate(); err != nil {
		return err
	}
	if s.Frame <= 0 {
		return fmt.Errorf("tone: frame must be positive, got %s", s.Frame)
	}
	samplesPerFrame := int(int64(s.Format.SampleRate) * int64(s.Frame) / int64(time.Second))
	if samplesPerFrame <= 0 {
		return fmt.Errorf("tone: frame %s holds no samples at %d Hz", s.Frame, s.Format.SampleRate)
	}
	amp := s.Amplitude
	if amp <= 0 || amp > 1 {
		amp = 0.5
	}

	var tick <-chan time.Time
	if s.Realtime {
		ticker := time.NewTicker(s.Frame)
		defer ticker.Stop()
		tick = ticker.C
	}

	var pos int64
	for frame := 0; s.Realtime || frame < s.Frames; frame++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		buf := make([]byte, 0, samplesPerFrame*s.Format.BlockAlign())
		for i := 0; i < samplesPerFrame; i++ {
			v := amp * math.Sin(2*math.Pi*s.Frequency*float64(pos)/float64(s.Format.SampleRate))
			pos++
			for ch := 0; ch < s.Format.Channels; ch++ {
				buf = appendSample(buf, s.Format.Encoding, v)
			}
		}
		sink.RenderSample(buf, s.Format.Encoding, s.Format.SampleRate, s.Format.Channels)
	}
	return nil
}

// appendSample encodes v in [-1, 1] as one little-endian sample.
func appendSample(b []byte, enc wavsink.Encoding, v float64) []byte {
	switch enc {
	case wavsink.EncodingPCM8:
		// 8-bit WAVE samples are unsigned with silence at 128.
		return append(b, byte(int(math.Round(v*127))+128))
	case wavsink.EncodingPCM16:
		return binary.LittleEndian.AppendUint16(b, uint16(int16(math.Round(v*math.MaxInt16))))
	case wavsink.EncodingPCMFloat:
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	return b
}
