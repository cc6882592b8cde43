package decode

import (
	"fmt"

	"github.com/himanishpuri/sonicres/internal/config"
)

// New builds the decoder selected by cfg.Backend.
func New(cfg config.DecoderConfig) (Decoder, error) {
	switch cfg.Backend {
	case config.DecoderLocal, "":
		return NewFFmpeg(cfg.FFmpeg), nil
	case config.DecoderDocker:
		return NewDocker(cfg.Container, cfg.SharedDir), nil
	case config.DecoderRemote:
		return NewRemote(cfg.RemoteURL), nil
	}
	return nil, fmt.Errorf("decode: unknown backend %q", cfg.Backend)
}
