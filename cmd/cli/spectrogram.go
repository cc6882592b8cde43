package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eligwz/spectrogram"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/utils"
)

type spectrogramOptions struct {
	outDir string
	width  int
	height int
	log10  bool
}

func spectrogramCmd() *cobra.Command {
	opts := spectrogramOptions{}
	cmd := &cobra.Command{
		Use:   "spectrogram <file_or_dir>",
		Short: "Render spectrogram PNGs for audio files",
		Long: `Render a spectrogram PNG for one audio file, or for every .wav file under
a directory. Files that are not WAV are converted with ffmpeg first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.MakeDir(opts.outDir); err != nil {
				return err
			}
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if !info.IsDir() {
				out, err := renderSpectrogram(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				fmt.Printf("Saved spectrogram to %s\n", out)
				return nil
			}

			var failed int
			err = filepath.WalkDir(args[0], func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
					return nil
				}
				out, err := renderSpectrogram(cmd.Context(), path, opts)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed++
					return nil
				}
				fmt.Printf("Saved spectrogram to %s\n", out)
				return nil
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d file(s) could not be rendered", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "spectrograms", "Output directory")
	cmd.Flags().IntVar(&opts.width, "width", 2048, "Image width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 512, "Image height in pixels (frequency bins)")
	cmd.Flags().BoolVar(&opts.log10, "log", false, "Log-scale magnitudes")
	return cmd
}

// renderSpectrogram writes <outDir>/<base>.png for the audio at path and
// returns the PNG path.
func renderSpectrogram(ctx context.Context, path string, opts spectrogramOptions) (string, error) {
	samples, rate, err := audio.ReadWavAsFloat64(path)
	if errors.Is(err, audio.ErrNotWAV) {
		wavPath, cerr := audio.ConvertToMonoWAV(ctx, path, tempDir, audio.ConvertWAVConfig{SampleRate: 22050})
		if cerr != nil {
			return "", cerr
		}
		defer utils.DeleteFile(wavPath)
		samples, rate, err = audio.ReadWavAsFloat64(wavPath)
	}
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("no samples in %s", path)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, opts.width, opts.height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude.
	spectrogram.Drawfft(img, samples, uint32(rate), uint32(opts.height), false, false, true, opts.log10)

	out := filepath.Join(opts.outDir, filepath.Base(path)+".png")
	if err := spectrogram.SavePng(img, out); err != nil {
		return "", fmt.Errorf("saving %s: %w", out, err)
	}
	return out, nil
}
