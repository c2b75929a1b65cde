package capture

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/myuon/audiosink/wavsink"
)

type recordingSink struct {
	bufs    [][]byte
	formats []wavsink.Format
}

func (r *recordingSink) RenderSample(buf []byte, enc wavsink.Encoding, sampleRate, channels int) {
	r.bufs = append(r.bufs, buf)
	r.formats = append(r.formats, wavsink.Format{Encoding: enc, SampleRate: sampleRate, Channels: channels})
}

func TestToneSourceFrameSizes(t *testing.T) {
	tests := []struct {
		format    wavsink.Format
		frameSize int
	}{
		{wavsink.Format{Encoding: wavsink.EncodingPCM8, SampleRate: 8000, Channels: 1}, 80},
		{wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: 16000, Channels: 2}, 640},
		{wavsink.Format{Encoding: wavsink.EncodingPCMFloat, SampleRate: 48000, Channels: 2}, 3840},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			sink := &recordingSink{}
			src := &ToneSource{Format: tt.format, Frequency: 440, Frame: 10 * time.Millisecond, Frames: 3}
			if err := src.Run(context.Background(), sink); err != nil {
				t.Fatal(err)
			}
			if len(sink.bufs) != 3 {
				t.Fatalf("got %d buffers, want 3", len(sink.bufs))
			}
			for i, b := range sink.bufs {
				if len(b) != tt.frameSize {
					t.Errorf("buffer %d: %d bytes, want %d", i, len(b), tt.frameSize)
				}
				if sink.formats[i] != tt.format {
					t.Errorf("buffer %d: format %v", i, sink.formats[i])
				}
			}
		})
	}
}

func TestToneSourceSamples(t *testing.T) {
	sink := &recordingSink{}
	// A quarter-rate tone visits 0, +peak, 0, -peak.
	src := &ToneSource{
		Format:    wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: 8000, Channels: 1},
		Frequency: 2000,
		Amplitude: 1,
		Frame:     time.Millisecond,
		Frames:    1,
	}
	if err := src.Run(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	b := sink.bufs[0]
	want := []int16{0, math.MaxInt16, 0, -math.MaxInt16}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(b[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestToneSourceInvalid(t *testing.T) {
	sink := &recordingSink{}
	bad := []*ToneSource{
		{Format: wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: 8000, Channels: 3}, Frame: time.Millisecond},
		{Format: wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: 8000, Channels: 1}},
		{Format: wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: 8000, Channels: 1}, Frame: time.Microsecond},
	}
	for i, src := range bad {
		if err := src.Run(context.Background(), sink); err == nil {
			t.Errorf("source %d: expected error", i)
		}
	}
	if len(sink.bufs) != 0 {
		t.Errorf("invalid sources delivered %d buffers", len(sink.bufs))
	}
}

func TestToneSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}
	src := &ToneSource{
		Format: wavsink.Format{Encoding: wavsink.EncodingPCM8, SampleRate: 8000, Channels: 1},
		Frame:  time.Millisecond,
		Frames: 1000,
	}
	if err := src.Run(ctx, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.bufs) != 0 {
		t.Errorf("cancelled source delivered %d buffers", len(sink.bufs))
	}
}
