package decode

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/models"
	"github.com/himanishpuri/sonicres/pkg/utils"
)

// Docker runs ffmpeg inside a long-lived container. Input and output travel
// through SharedDir, which must be mounted at the same path in the container.
type Docker struct {
	Container string
	SharedDir string
	Binary    string
	Runner    Runner
}

func NewDocker(container, sharedDir string) *Docker {
	return &Docker{Container: container, SharedDir: sharedDir, Binary: "docker", Runner: ExecRunner{}}
}

func (d *Docker) Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error) {
	if err := utils.MakeDir(d.SharedDir); err != nil {
		return models.PCM{}, fmt.Errorf("decode: shared dir: %w", err)
	}

	sharedIn := filepath.Join(d.SharedDir, filepath.Base(src))
	sharedOut := filepath.Join(d.SharedDir, filepath.Base(dst))
	defer utils.DeleteFile(sharedIn)
	defer utils.DeleteFile(sharedOut)

	if err := utils.CopyFile(src, sharedIn); err != nil {
		return models.PCM{}, fmt.Errorf("decode: staging input: %w", err)
	}

	args := append([]string{"exec", d.Container, "ffmpeg"}, audio.FFmpegArgs(sharedIn, sharedOut, profile)...)
	out, err := d.Runner.Run(ctx, d.Binary, args...)
	if err != nil {
		return models.PCM{}, runErr(ctx, "docker exec ffmpeg", out, err)
	}

	if err := utils.CopyFile(sharedOut, dst); err != nil {
		return models.PCM{}, fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	return LoadOutput(dst, profile)
}
