package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/sonicres/internal/config"
	"github.com/himanishpuri/sonicres/internal/decode"
	"github.com/himanishpuri/sonicres/internal/match"
	"github.com/himanishpuri/sonicres/internal/observe"
	"github.com/himanishpuri/sonicres/internal/stream"
	"github.com/himanishpuri/sonicres/pkg/acousticdna"
	"github.com/himanishpuri/sonicres/pkg/logger"
)

const version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	addr       string
	dbPath     string
	tempDir    string
	origins    string
	logLevel   string
	decoder    string
	matcher    string
	workers    int
}

func rootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "sonicres-server",
		Short:         "Streaming audio identification server",
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &f, cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML config file")
	fl.StringVar(&f.addr, "addr", "", "Listen address (default :8080)")
	fl.StringVar(&f.dbPath, "db", "", "Path to the SQLite catalogue")
	fl.StringVar(&f.tempDir, "temp", "", "Directory for session buffers and decoded audio")
	fl.StringVar(&f.origins, "origins", "", "Comma-separated list of allowed origins (use * for all)")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fl.StringVar(&f.decoder, "decoder", "", "Decode backend: local, docker, remote")
	fl.StringVar(&f.matcher, "matcher", "", "Match backend: fingerprint, static")
	fl.IntVar(&f.workers, "workers", 0, "Processing workers (default max(2, CPUs))")
	return cmd
}

// applyFlags overlays flags the user actually set, then revalidates.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) error {
	set := cmd.Flags().Changed
	if set("addr") {
		cfg.Server.Addr = f.addr
	}
	if set("db") {
		cfg.Catalog.DBPath = f.dbPath
	}
	if set("temp") {
		cfg.Stream.TempDir = f.tempDir
	}
	if set("origins") {
		cfg.Server.AllowedOrigins = parseOrigins(f.origins)
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("decoder") {
		cfg.Decoder.Backend = config.DecoderBackend(f.decoder)
	}
	if set("matcher") {
		cfg.Matcher.Backend = config.MatcherBackend(f.matcher)
	}
	if set("workers") {
		cfg.Stream.Workers = f.workers
	}
	return config.Validate(cfg)
}

func parseOrigins(s string) []string {
	if strings.TrimSpace(s) == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func configureLogger(cfg config.LogConfig) error {
	lvl, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	log.SetLevel(lvl)
	if !cfg.Color || os.Getenv("NO_COLOR") != "" {
		log.SetColorize(false)
	}
	return nil
}

func buildMatcher(cfg config.MatcherConfig, service acousticdna.Service) (match.Matcher, error) {
	switch cfg.Backend {
	case config.MatcherFingerprint:
		return match.NewFingerprint(service, cfg.MinConfidence), nil
	case config.MatcherStatic:
		return match.NewStatic(), nil
	}
	return nil, fmt.Errorf("unknown matcher backend %q", cfg.Backend)
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := configureLogger(cfg.Log); err != nil {
		return err
	}
	log := logger.GetLogger()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("metrics provider: %w", err)
	}
	defer shutdownMetrics(context.Background())
	metrics := observe.DefaultMetrics()

	service, err := acousticdna.NewService(
		acousticdna.WithDBPath(cfg.Catalog.DBPath),
		acousticdna.WithTempDir(cfg.Stream.TempDir),
		acousticdna.WithSampleRate(cfg.Catalog.SampleRate),
		acousticdna.WithFFmpegBinary(cfg.Decoder.FFmpeg),
		acousticdna.WithLogger(log.WithPrefix("[catalog]")),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer service.Close()

	dec, err := decode.New(cfg.Decoder)
	if err != nil {
		return err
	}
	m, err := buildMatcher(cfg.Matcher, service)
	if err != nil {
		return err
	}

	hub := stream.NewHub(dec, m,
		stream.WithTempDir(cfg.Stream.TempDir),
		stream.WithFlushBytes(cfg.Stream.FlushBytes),
		stream.WithWorkers(cfg.Stream.Workers),
		stream.WithQueueSize(cfg.Stream.QueueSize),
		stream.WithDecodeTimeout(cfg.Stream.DecodeTimeout),
		stream.WithMatchTimeout(cfg.Stream.MatchTimeout),
		stream.WithMetrics(metrics),
		stream.WithLogger(log.WithPrefix("[hub]")),
	)

	return NewServer(service, hub, cfg, metrics).Run(ctx)
}
