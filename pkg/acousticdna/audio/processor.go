package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/sonicres/pkg/models"
	"github.com/himanishpuri/sonicres/pkg/utils"
)

// DefaultConvertTimeout bounds an ffmpeg run when the caller supplies no deadline.
const DefaultConvertTimeout = 30 * time.Second

type ConvertWAVConfig struct {
	SampleRate int
	// Binary overrides the ffmpeg executable; defaults to "ffmpeg".
	Binary string
}

// FFmpegArgs builds the argument list that transcodes src into a PCM WAV at dst
// with the given profile. It is shared by every backend that shells out to ffmpeg.
func FFmpegArgs(src, dst string, profile models.PCMProfile) []string {
	return []string{
		"-y",
		"-v", "error",
		"-i", src,
		"-ac", strconv.Itoa(profile.Channels),
		"-ar", strconv.Itoa(profile.SampleRate),
		"-acodec", pcmCodec(profile.BitDepth),
		"-f", "wav",
		dst,
	}
}

func pcmCodec(bitDepth int) string {
	switch bitDepth {
	case 8:
		return "pcm_u8"
	case 24:
		return "pcm_s24le"
	case 32:
		return "pcm_s32le"
	default:
		return "pcm_s16le"
	}
}

// ConvertToMonoWAV transcodes inputPath into a mono 16-bit WAV inside outputDir
// and returns the new file's path. The caller owns the returned file.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 11025
	}
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConvertTimeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out, err := os.CreateTemp(outputDir, base+"-*.wav")
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	outputPath := out.Name()
	out.Close()

	profile := models.PCMProfile{SampleRate: cfg.SampleRate, Channels: 1, BitDepth: 16}
	cmd := exec.CommandContext(ctx, cfg.Binary, FFmpegArgs(inputPath, outputPath, profile)...)

	if output, err := cmd.CombinedOutput(); err != nil {
		utils.DeleteFile(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, strings.TrimSpace(string(output)))
	}

	return outputPath, nil
}
