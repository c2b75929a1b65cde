package wavsink

import (
	"fmt"
	"os"
	"time"

	"github.com/youpy/go-wav"
)

// Info summarizes a WAVE file on disk.
type Info struct {
	Path          string        `json:"path" yaml:"path"`
	FileSize      int64         `json:"file_size" yaml:"file_size"`
	SampleRate    uint32        `json:"sample_rate" yaml:"sample_rate"`
	Channels      uint16        `json:"channels" yaml:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample" yaml:"bits_per_sample"`
	DataSize      uint32        `json:"data_size" yaml:"data_size"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	// Finalized is true when both size fields agree with the file length.
	Finalized bool `json:"finalized" yaml:"finalized"`
}

// Inspect reads the header of the file at path. A finalized file is also
// parsed chunk by chunk through go-wav; an unfinished one is described from
// the raw header with the payload size taken from the file length.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, ioErr("stat", path, err)
	}
	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}

	info := &Info{
		Path:          path,
		FileSize:      fi.Size(),
		SampleRate:    h.SampleRate,
		Channels:      h.NumChannels,
		BitsPerSample: h.BitsPerSample,
		DataSize:      h.Subchunk2Size,
		Finalized:     h.Consistent(fi.Size()),
	}

	if !info.Finalized {
		info.DataSize = uint32(max(fi.Size()-HeaderSize, 0))
		if h.ByteRate > 0 {
			info.Duration = time.Duration(float64(info.DataSize) / float64(h.ByteRate) * float64(time.Second))
		}
		return info, nil
	}

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	info.SampleRate = format.SampleRate
	info.Channels = format.NumChannels
	info.BitsPerSample = format.BitsPerSample
	if format.ByteRate > 0 {
		info.Duration = time.Duration(float64(info.DataSize) / float64(format.ByteRate) * float64(time.Second))
	}
	return info, nil
}
