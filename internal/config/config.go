// Package config defines the server configuration and how it is loaded.
package config

import (
	"os"
	"runtime"
	"time"
)

// DecoderBackend selects how raw session audio is turned into canonical PCM.
type DecoderBackend string

const (
	DecoderLocal  DecoderBackend = "local"
	DecoderDocker DecoderBackend = "docker"
	DecoderRemote DecoderBackend = "remote"
)

// MatcherBackend selects the identification engine.
type MatcherBackend string

const (
	MatcherFingerprint MatcherBackend = "fingerprint"
	MatcherStatic      MatcherBackend = "static"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Stream  StreamConfig  `yaml:"stream"`
	Decoder DecoderConfig `yaml:"decoder"`
	Matcher MatcherConfig `yaml:"matcher"`
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" validate:"gt=0"`
}

type StreamConfig struct {
	TempDir        string        `yaml:"temp_dir" validate:"required"`
	FlushBytes     int           `yaml:"flush_bytes" validate:"gt=0"`
	ReadLimitBytes int64         `yaml:"read_limit_bytes" validate:"gt=0"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	Workers        int           `yaml:"workers" validate:"gte=1"`
	QueueSize      int           `yaml:"queue_size" validate:"gte=1"`
	DecodeTimeout  time.Duration `yaml:"decode_timeout" validate:"gt=0"`
	MatchTimeout   time.Duration `yaml:"match_timeout" validate:"gt=0"`
}

type DecoderConfig struct {
	Backend   DecoderBackend `yaml:"backend" validate:"oneof=local docker remote"`
	FFmpeg    string         `yaml:"ffmpeg" validate:"required"`
	Container string         `yaml:"container"`
	SharedDir string         `yaml:"shared_dir"`
	RemoteURL string         `yaml:"remote_url"`
}

type MatcherConfig struct {
	Backend       MatcherBackend `yaml:"backend" validate:"oneof=fingerprint static"`
	MinConfidence float64        `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

type CatalogConfig struct {
	DBPath     string `yaml:"db_path" validate:"required"`
	SampleRate int    `yaml:"sample_rate" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Color bool   `yaml:"color"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  50 << 20,
		},
		Stream: StreamConfig{
			TempDir:        os.TempDir(),
			FlushBytes:     50000,
			ReadLimitBytes: 10 << 20,
			IdleTimeout:    60 * time.Second,
			Workers:        max(2, runtime.NumCPU()),
			QueueSize:      64,
			DecodeTimeout:  30 * time.Second,
			MatchTimeout:   30 * time.Second,
		},
		Decoder: DecoderConfig{
			Backend:   DecoderLocal,
			FFmpeg:    "ffmpeg",
			Container: "ffmpeg-service-local",
			SharedDir: "/tmp/audio",
		},
		Matcher: MatcherConfig{
			Backend:       MatcherFingerprint,
			MinConfidence: 0.05,
		},
		Catalog: CatalogConfig{
			DBPath:     "acousticdna.sqlite3",
			SampleRate: 11025,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}
