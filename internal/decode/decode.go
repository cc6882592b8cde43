// Package decode turns a raw session recording into canonical PCM.
package decode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/models"
)

var (
	// ErrEmptyOutput means the backend ran but produced no audio samples.
	ErrEmptyOutput = errors.New("decode: empty output")
	// ErrProfileMismatch means the output does not carry the requested profile.
	ErrProfileMismatch = errors.New("decode: output profile mismatch")
)

// Decoder converts the file at src into a WAV at dst with the given profile
// and returns its samples. dst is created or truncated; the caller removes it.
// When ctx expires the returned error wraps ctx.Err() and nothing more may be
// written to dst.
type Decoder interface {
	Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error)
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LoadOutput validates the WAV at path against profile and loads it.
func LoadOutput(path string, profile models.PCMProfile) (models.PCM, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.PCM{}, fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if info.Size() == 0 {
		return models.PCM{}, ErrEmptyOutput
	}

	got, pcmLen, err := audio.SourceProfile(path)
	if err != nil {
		return models.PCM{}, fmt.Errorf("decode: reading output: %w", err)
	}
	if got != profile {
		return models.PCM{}, fmt.Errorf("%w: got %s, want %s", ErrProfileMismatch, got, profile)
	}
	if pcmLen == 0 {
		return models.PCM{}, ErrEmptyOutput
	}

	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return models.PCM{}, fmt.Errorf("decode: reading output: %w", err)
	}
	if len(pcm.Data) == 0 {
		return models.PCM{}, ErrEmptyOutput
	}
	return pcm, nil
}

// runErr folds a context expiry into the error so callers can test for it.
func runErr(ctx context.Context, what string, out []byte, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("decode: %s: %w", what, ctxErr)
	}
	return fmt.Errorf("decode: %s failed: %v (%s)", what, err, trimOutput(out))
}

func trimOutput(out []byte) string {
	const maxLen = 512
	if len(out) > maxLen {
		out = out[len(out)-maxLen:]
	}
	return string(out)
}
