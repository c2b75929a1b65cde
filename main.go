package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/myuon/audiosink/capture"
	"github.com/myuon/audiosink/config"
	"github.com/myuon/audiosink/logging"
	"github.com/myuon/audiosink/wavsink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "audiosink",
	Short:         "Capture live audio to a WAVE file",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("audiosink %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record until interrupted or the configured duration elapses",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		return record(cmd.Context(), cfg, logger)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <file.wav>",
	Short: "Describe a capture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := wavsink.Inspect(args[0])
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return printInfo(cmd.OutOrStdout(), info, output)
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe a 16-bit capture with Cloud Speech-to-Text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		return transcribeFile(cmd.Context(), args[0], cfg.Language, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(transcribeCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path")

	recordCmd.Flags().StringP("output", "o", "", "Output file path")
	recordCmd.Flags().StringP("source", "s", "", "Audio source: mic or tone")
	recordCmd.Flags().DurationP("duration", "d", 0, "Stop after this long (0 records until interrupted)")
	recordCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	infoCmd.Flags().StringP("output", "o", "yaml", "Output format: yaml or json")

	transcribeCmd.Flags().StringP("language", "l", "", "BCP-47 language code")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		path, _ := flags.GetString("output")
		cfg.OutputDir, cfg.FileName = filepath.Dir(path), filepath.Base(path)
	}
	if flags.Changed("source") {
		cfg.Source, _ = flags.GetString("source")
	}
	if flags.Changed("duration") {
		cfg.Duration, _ = flags.GetDuration("duration")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("language") {
		cfg.Language, _ = flags.GetString("language")
	}
	return cfg, cfg.Validate()
}

func record(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	fallback, err := cfg.Fallback.Format()
	if err != nil {
		return err
	}
	src, err := newSource(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := capture.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	writer := wavsink.NewWriter(cfg.OutputPath(),
		wavsink.WithLogger(logger.Named("wavsink")),
		wavsink.WithFallbackFormat(fallback),
		wavsink.WithBufferSize(cfg.BufferSize))
	ctrl := capture.NewController(writer, cfg.ErrorQueue, logger.Named("capture"), metrics)

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	summary, err := ctrl.Record(ctx, src)
	if summary != nil && summary.Info != nil {
		fmt.Printf("%s: %s, %d Hz, %d ch, %d-bit\n",
			summary.Info.Path, summary.Info.Duration.Round(time.Millisecond),
			summary.Info.SampleRate, summary.Info.Channels, summary.Info.BitsPerSample)
	}
	return err
}

func newSource(cfg *config.Config, logger *zap.Logger) (capture.Source, error) {
	switch cfg.Source {
	case "mic":
		return newMicSource(cfg.Mic, logger.Named("mic")), nil
	case "tone":
		format, err := cfg.Tone.Format()
		if err != nil {
			return nil, err
		}
		return &capture.ToneSource{
			Format:    format,
			Frequency: cfg.Tone.Frequency,
			Frame:     cfg.Tone.Frame,
			Realtime:  true,
		}, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func printInfo(w io.Writer, info *wavsink.Info, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
