package wavsink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestNewHeaderLayout(t *testing.T) {
	tests := []struct {
		name       string
		format     Format
		byteRate   uint32
		blockAlign uint16
		bits       uint16
	}{
		{"pcm8 mono 8k", Format{EncodingPCM8, 8000, 1}, 8000, 1, 8},
		{"pcm8 stereo 22050", Format{EncodingPCM8, 22050, 2}, 44100, 2, 8},
		{"pcm16 mono 16k", Format{EncodingPCM16, 16000, 1}, 32000, 2, 16},
		{"pcm16 stereo 44100", Format{EncodingPCM16, 44100, 2}, 176400, 4, 16},
		{"float mono 48k", Format{EncodingPCMFloat, 48000, 1}, 192000, 4, 32},
		{"float stereo 96k", Format{EncodingPCMFloat, 96000, 2}, 768000, 8, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHeader(tt.format)
			if err != nil {
				t.Fatalf("NewHeader: %v", err)
			}
			b := h.Bytes()

			want := make([]byte, 0, HeaderSize)
			want = append(want, "RIFF"...)
			want = binary.LittleEndian.AppendUint32(want, 0)
			want = append(want, "WAVE"...)
			want = append(want, "fmt "...)
			want = binary.LittleEndian.AppendUint32(want, 16)
			want = binary.LittleEndian.AppendUint16(want, 1)
			want = binary.LittleEndian.AppendUint16(want, uint16(tt.format.Channels))
			want = binary.LittleEndian.AppendUint32(want, uint32(tt.format.SampleRate))
			want = binary.LittleEndian.AppendUint32(want, tt.byteRate)
			want = binary.LittleEndian.AppendUint16(want, tt.blockAlign)
			want = binary.LittleEndian.AppendUint16(want, tt.bits)
			want = append(want, "data"...)
			want = binary.LittleEndian.AppendUint32(want, 0)

			if !bytes.Equal(b[:], want) {
				t.Errorf("header mismatch\n got %x\nwant %x", b[:], want)
			}
		})
	}
}

func TestNewHeaderRejectsUnsupported(t *testing.T) {
	for _, f := range []Format{
		{EncodingPCM16, 44100, 3},
		{EncodingPCM16, 44100, 0},
		{EncodingInvalid, 44100, 1},
		{Encoding(42), 44100, 1},
		{EncodingPCM16, 0, 1},
		{EncodingPCMFloat, 1 << 30, 2},
	} {
		if _, err := NewHeader(f); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("NewHeader(%v) error = %v, want ErrUnsupportedFormat", f, err)
		}
	}
}

func TestParseHeader(t *testing.T) {
	h, err := NewHeader(Format{EncodingPCM16, 44100, 2})
	if err != nil {
		t.Fatal(err)
	}
	h.ChunkSize = 36 + 400
	h.Subchunk2Size = 400
	b := h.Bytes()

	got, err := ParseHeader(b[:])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if *got != *h {
		t.Errorf("ParseHeader = %+v, want %+v", *got, *h)
	}
	if !got.Consistent(HeaderSize + 400) {
		t.Error("expected header to be consistent with 444-byte file")
	}
	if got.Consistent(HeaderSize + 401) {
		t.Error("expected header to be inconsistent with 445-byte file")
	}
	if d := got.Duration(); d != 400.0/176400.0 {
		t.Errorf("Duration = %v", d)
	}
}

func TestParseHeaderInvalid(t *testing.T) {
	if _, err := ParseHeader([]byte("RIFF")); err == nil {
		t.Error("expected error for short header")
	}

	h, _ := NewHeader(DefaultFormat)
	for _, off := range []int{0, 8, 12, 36} {
		b := h.Bytes()
		copy(b[off:off+4], "XXXX")
		if _, err := ParseHeader(b[:]); err == nil {
			t.Errorf("expected error with tag at offset %d corrupted", off)
		}
	}
}

func TestPatchSizes(t *testing.T) {
	h, _ := NewHeader(DefaultFormat)
	b := h.Bytes()
	buf := &sliceWriterAt{b: append(b[:], make([]byte, 100)...)}

	if err := patchSizes(buf, int64(len(buf.b))); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(buf.b[4:8]); got != 136 {
		t.Errorf("ChunkSize = %d, want 136", got)
	}
	if got := binary.LittleEndian.Uint32(buf.b[40:44]); got != 100 {
		t.Errorf("Subchunk2Size = %d, want 100", got)
	}
}

func TestParseEncoding(t *testing.T) {
	tests := map[string]Encoding{
		"pcm8":    EncodingPCM8,
		"PCM16":   EncodingPCM16,
		"":        EncodingPCM16,
		"float32": EncodingPCMFloat,
		" f32le ": EncodingPCMFloat,
	}
	for in, want := range tests {
		got, err := ParseEncoding(in)
		if err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseEncoding("mp3"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ParseEncoding(mp3) error = %v", err)
	}
}

type sliceWriterAt struct{ b []byte }

func (s *sliceWriterAt) WriteAt(p []byte, off int64) (int, error) {
	return copy(s.b[off:], p), nil
}
