package decode

import (
	"context"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/models"
)

// FFmpeg decodes with a locally installed ffmpeg binary.
type FFmpeg struct {
	Binary string
	Runner Runner
}

func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary, Runner: ExecRunner{}}
}

func (f *FFmpeg) Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error) {
	out, err := f.Runner.Run(ctx, f.Binary, audio.FFmpegArgs(src, dst, profile)...)
	if err != nil {
		return models.PCM{}, runErr(ctx, "ffmpeg", out, err)
	}
	return LoadOutput(dst, profile)
}
