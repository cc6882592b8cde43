package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML over the defaults and validates the result.
// Environment variables are not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. lookup is usually
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("ACOUSTIC_DB_PATH", &cfg.Catalog.DBPath)
	str("ACOUSTIC_TEMP_DIR", &cfg.Stream.TempDir)
	str("FFMPEG_CONTAINER", &cfg.Decoder.Container)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("SONICRES_ADDR", &cfg.Server.Addr)
	str("SONICRES_DECODER", (*string)(&cfg.Decoder.Backend))
	str("SONICRES_DECODER_URL", &cfg.Decoder.RemoteURL)
	str("SONICRES_MATCHER", (*string)(&cfg.Matcher.Backend))
	num("SONICRES_WORKERS", &cfg.Stream.Workers)
	num("SONICRES_QUEUE_SIZE", &cfg.Stream.QueueSize)
	dur("SONICRES_IDLE_TIMEOUT", &cfg.Stream.IdleTimeout)
	dur("SONICRES_DECODE_TIMEOUT", &cfg.Stream.DecodeTimeout)
	dur("SONICRES_MATCH_TIMEOUT", &cfg.Stream.MatchTimeout)

	// The docker decode path always works through the shared volume.
	if _, ok := lookup("FFMPEG_CONTAINER"); ok && cfg.Decoder.Backend == DecoderLocal {
		cfg.Decoder.Backend = DecoderDocker
	}
	return errors.Join(errs...)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field requirements, returning
// every failure joined together.
func Validate(cfg *Config) error {
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	switch cfg.Decoder.Backend {
	case DecoderDocker:
		if cfg.Decoder.Container == "" {
			errs = append(errs, errors.New("decoder.container is required when backend is docker"))
		}
		if cfg.Decoder.SharedDir == "" {
			errs = append(errs, errors.New("decoder.shared_dir is required when backend is docker"))
		}
	case DecoderRemote:
		u, err := url.Parse(cfg.Decoder.RemoteURL)
		if cfg.Decoder.RemoteURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("decoder.remote_url %q must be an http(s) URL when backend is remote", cfg.Decoder.RemoteURL))
		}
	}
	return errors.Join(errs...)
}
