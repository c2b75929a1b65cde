package wavsink

import (
	"fmt"
	"math"
	"strings"
)

// Encoding identifies the PCM sample encoding of a buffer.
type Encoding int

const (
	EncodingInvalid Encoding = iota
	EncodingPCM8
	EncodingPCM16
	EncodingPCMFloat
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM8:
		return "pcm8"
	case EncodingPCM16:
		return "pcm16"
	case EncodingPCMFloat:
		return "float32"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// BitDepth returns the bits per sample of e, or 0 when e is not supported.
func (e Encoding) BitDepth() int {
	switch e {
	case EncodingPCM8:
		return 8
	case EncodingPCM16:
		return 16
	case EncodingPCMFloat:
		return 32
	}
	return 0
}

// ParseEncoding maps a configuration name to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pcm8", "u8", "8":
		return EncodingPCM8, nil
	case "pcm16", "s16le", "16", "":
		return EncodingPCM16, nil
	case "float32", "f32le", "pcmfloat", "32":
		return EncodingPCMFloat, nil
	}
	return EncodingInvalid, fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, name)
}

// Format describes the sample layout fixed by the first buffer of a session.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// DefaultFormat is used for the header of a session finalized before any
// sample arrived.
var DefaultFormat = Format{Encoding: EncodingPCM16, SampleRate: 44100, Channels: 1}

// Validate reports ErrUnsupportedFormat for anything outside 1-2 channels,
// the three PCM encodings, and a positive sample rate whose byte rate fits
// the 32-bit header field.
func (f Format) Validate() error {
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	}
	if f.Encoding.BitDepth() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Encoding)
	}
	if f.SampleRate <= 0 || int64(f.SampleRate) > int64(^uint32(0)) {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if int64(f.SampleRate)*int64(f.BlockAlign()) > math.MaxUint32 {
		return fmt.Errorf("%w: byte rate of %s overflows 32 bits", ErrUnsupportedFormat, f)
	}
	return nil
}

func (f Format) BytesPerSample() int {
	return f.Encoding.BitDepth() / 8
}

// BlockAlign is the size in bytes of one frame (one sample for every channel).
func (f Format) BlockAlign() int {
	return f.Channels * f.BytesPerSample()
}

func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Encoding, f.SampleRate, f.Channels)
}
