package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/myuon/audiosink/config"
	"github.com/myuon/audiosink/wavsink"
	"go.uber.org/zap"
)

// micSource captures 16-bit PCM from the default input device.
type micSource struct {
	sampleRate      int
	channels        int
	framesPerBuffer int
	logger          *zap.Logger
}

func newMicSource(cfg config.MicConfig, logger *zap.Logger) *micSource {
	return &micSource{
		sampleRate:      cfg.SampleRate,
		channels:        cfg.Channels,
		framesPerBuffer: cfg.FramesPerBuffer,
		logger:          logger,
	}
}

func (m *micSource) Run(ctx context.Context, sink wavsink.SampleSink) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	// The callback runs on the PortAudio thread; it only converts and hands
	// the buffer to the sink.
	stream, err := portaudio.OpenDefaultStream(m.channels, 0, float64(m.sampleRate), m.framesPerBuffer, func(in []int16) {
		buf := make([]byte, 0, len(in)*2)
		for _, s := range in {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
		}
		sink.RenderSample(buf, wavsink.EncodingPCM16, m.sampleRate, m.channels)
	})
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	m.logger.Info("recording from default input device",
		zap.Int("sample_rate", m.sampleRate),
		zap.Int("channels", m.channels),
		zap.Int("frames_per_buffer", m.framesPerBuffer))

	<-ctx.Done()

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("stop input stream: %w", err)
	}
	return nil
}
