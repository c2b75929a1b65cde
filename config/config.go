package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/myuon/audiosink/wavsink"
	"github.com/spf13/viper"
)

// Config holds recorder configuration.
type Config struct {
	// Output
	OutputDir  string `mapstructure:"output_dir"`
	FileName   string `mapstructure:"file_name"`
	BufferSize int    `mapstructure:"buffer_size"`
	ErrorQueue int    `mapstructure:"error_queue"`

	// Header used when a capture is stopped before any sample arrived
	Fallback FormatConfig `mapstructure:"fallback"`

	// Capture
	Source   string        `mapstructure:"source"`
	Duration time.Duration `mapstructure:"duration"`
	Mic      MicConfig     `mapstructure:"mic"`
	Tone     ToneConfig    `mapstructure:"tone"`

	// Transcription
	Language string `mapstructure:"language"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

type FormatConfig struct {
	Encoding   string `mapstructure:"encoding"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
}

// Format converts the configured names into a wavsink.Format.
func (f FormatConfig) Format() (wavsink.Format, error) {
	enc, err := wavsink.ParseEncoding(f.Encoding)
	if err != nil {
		return wavsink.Format{}, err
	}
	format := wavsink.Format{Encoding: enc, SampleRate: f.SampleRate, Channels: f.Channels}
	return format, format.Validate()
}

type MicConfig struct {
	SampleRate      int `mapstructure:"sample_rate"`
	Channels        int `mapstructure:"channels"`
	FramesPerBuffer int `mapstructure:"frames_per_buffer"`
}

type ToneConfig struct {
	FormatConfig `mapstructure:",squash"`
	Frequency    float64       `mapstructure:"frequency"`
	Frame        time.Duration `mapstructure:"frame"`
}

// Default returns configuration with sensible defaults.
func Default() *Config {
	return &Config{
		OutputDir:  ".",
		FileName:   "audio_sink.wav",
		BufferSize: 64 * 1024,
		ErrorQueue: 64,
		Fallback: FormatConfig{
			Encoding:   "pcm16",
			SampleRate: 44100,
			Channels:   1,
		},
		Source: "mic",
		Mic: MicConfig{
			SampleRate:      44100,
			Channels:        1,
			FramesPerBuffer: 64,
		},
		Tone: ToneConfig{
			FormatConfig: FormatConfig{Encoding: "pcm16", SampleRate: 48000, Channels: 2},
			Frequency:    440,
			Frame:        10 * time.Millisecond,
		},
		Language:  "en-US",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads configuration from cfgFile, or from audiosink.yaml in the
// working directory when cfgFile is empty, then applies AUDIOSINK_*
// environment overrides.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("audiosink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AUDIOSINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

// bindDefaults registers every key so AutomaticEnv can override values
// that are absent from the file.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("file_name", cfg.FileName)
	v.SetDefault("buffer_size", cfg.BufferSize)
	v.SetDefault("error_queue", cfg.ErrorQueue)
	v.SetDefault("fallback.encoding", cfg.Fallback.Encoding)
	v.SetDefault("fallback.sample_rate", cfg.Fallback.SampleRate)
	v.SetDefault("fallback.channels", cfg.Fallback.Channels)
	v.SetDefault("source", cfg.Source)
	v.SetDefault("duration", cfg.Duration)
	v.SetDefault("mic.sample_rate", cfg.Mic.SampleRate)
	v.SetDefault("mic.channels", cfg.Mic.Channels)
	v.SetDefault("mic.frames_per_buffer", cfg.Mic.FramesPerBuffer)
	v.SetDefault("tone.encoding", cfg.Tone.Encoding)
	v.SetDefault("tone.sample_rate", cfg.Tone.SampleRate)
	v.SetDefault("tone.channels", cfg.Tone.Channels)
	v.SetDefault("tone.frequency", cfg.Tone.Frequency)
	v.SetDefault("tone.frame", cfg.Tone.Frame)
	v.SetDefault("language", cfg.Language)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
}

// OutputPath is the full path of the capture file.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.FileName)
}

// Validate checks the configuration for values the recorder cannot use.
func (c *Config) Validate() error {
	if c.FileName == "" {
		return errors.New("file_name must not be empty")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.ErrorQueue <= 0 {
		return fmt.Errorf("error_queue must be positive, got %d", c.ErrorQueue)
	}
	if _, err := c.Fallback.Format(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %s", c.Duration)
	}

	switch c.Source {
	case "mic":
		f := wavsink.Format{Encoding: wavsink.EncodingPCM16, SampleRate: c.Mic.SampleRate, Channels: c.Mic.Channels}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("mic: %w", err)
		}
		if c.Mic.FramesPerBuffer <= 0 {
			return fmt.Errorf("mic: frames_per_buffer must be positive, got %d", c.Mic.FramesPerBuffer)
		}
	case "tone":
		if _, err := c.Tone.Format(); err != nil {
			return fmt.Errorf("tone: %w", err)
		}
		if c.Tone.Frequency <= 0 {
			return fmt.Errorf("tone: frequency must be positive, got %g", c.Tone.Frequency)
		}
		if c.Tone.Frame <= 0 {
			return fmt.Errorf("tone: frame must be positive, got %s", c.Tone.Frame)
		}
	default:
		return fmt.Errorf("unknown source %q (want mic or tone)", c.Source)
	}
	return nil
}
