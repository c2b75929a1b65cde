package wavsink

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the length of the canonical PCM WAVE header.
const HeaderSize = 44

// Byte offsets of the two size fields patched at finalize.
const (
	chunkSizeOffset     = 4
	subchunk2SizeOffset = 40
)

const maxRIFFSize = int64(^uint32(0))

// Header is the canonical 44-byte RIFF/WAVE header of a PCM file.
type Header struct {
	ChunkSize     uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2Size uint32
}

// NewHeader derives a header from f with both size fields left at zero.
func NewHeader(f Format) (*Header, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Header{
		AudioFormat:   1, // PCM
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.Encoding.BitDepth()),
	}, nil
}

// Bytes encodes h little-endian in the on-disk layout.
func (h *Header) Bytes() [HeaderSize]byte {
	var b [HeaderSize]byte
	// RIFF chunk
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], h.ChunkSize)
	copy(b[8:12], "WAVE")

	// fmt chunk
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(b[22:24], h.NumChannels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(b[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(b[34:36], h.BitsPerSample)

	// data chunk
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], h.Subchunk2Size)
	return b
}

// WriteTo writes the encoded header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	b := h.Bytes()
	n, err := w.Write(b[:])
	return int64(n), err
}

// ParseHeader decodes the first 44 bytes of b.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("wavsink: header too short: %d bytes", len(b))
	}
	for _, tag := range []struct {
		off  int
		want string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if got := string(b[tag.off : tag.off+4]); got != tag.want {
			return nil, fmt.Errorf("wavsink: expected %q at offset %d, got %q", tag.want, tag.off, got)
		}
	}
	if size := binary.LittleEndian.Uint32(b[16:20]); size != 16 {
		return nil, fmt.Errorf("wavsink: unexpected fmt chunk size %d", size)
	}

	return &Header{
		ChunkSize:     binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		NumChannels:   binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		Subchunk2Size: binary.LittleEndian.Uint32(b[40:44]),
	}, nil
}

// ReadHeader reads and decodes a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	var b [HeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return ParseHeader(b[:])
}

// Consistent reports whether both size fields match a file of the given length.
func (h *Header) Consistent(fileLength int64) bool {
	if fileLength < HeaderSize || fileLength > maxRIFFSize {
		return false
	}
	return int64(h.ChunkSize) == fileLength-8 && int64(h.Subchunk2Size) == fileLength-HeaderSize
}

// Duration of the payload in seconds, derived from the data size field.
func (h *Header) Duration() float64 {
	if h.ByteRate == 0 {
		return 0
	}
	return float64(h.Subchunk2Size) / float64(h.ByteRate)
}

func patchSizes(w io.WriterAt, fileLength int64) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(fileLength-8))
	if _, err := w.WriteAt(b[:], chunkSizeOffset); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b[:], uint32(fileLength-HeaderSize))
	_, err := w.WriteAt(b[:], subchunk2SizeOffset)
	return err
}
