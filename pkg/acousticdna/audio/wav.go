package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

var ErrNotWAV = errors.New("not a valid WAV file")

// ReadWAV loads a PCM WAV file. Only integer PCM is accepted; the samples are
// re-packed as 16-bit little-endian regardless of source depth.
func ReadWAV(path string) (models.PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.PCM{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return models.PCM{}, ErrNotWAV
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return models.PCM{}, fmt.Errorf("unsupported WAV audio format %d: only PCM supported", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return models.PCM{}, fmt.Errorf("reading PCM data: %w", err)
	}

	profile := models.PCMProfile{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   16,
	}
	return models.PCM{Profile: profile, Data: packInt16(buf.Data, int(dec.BitDepth))}, nil
}

// SourceProfile reports the header of a WAV file without loading its samples.
func SourceProfile(path string) (models.PCMProfile, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.PCMProfile{}, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return models.PCMProfile{}, 0, ErrNotWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return models.PCMProfile{}, 0, fmt.Errorf("locating PCM chunk: %w", err)
	}
	return models.PCMProfile{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, dec.PCMLen(), nil
}

// ReadWavAsFloat64 returns mono samples in [-1, 1) and the sample rate.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	pcm, err := ReadWAV(path)
	if err != nil {
		return nil, 0, err
	}
	return pcm.Float64(), pcm.Profile.SampleRate, nil
}

// WriteWAV encodes 16-bit PCM into a WAV file at path.
func WriteWAV(path string, pcm models.PCM) error {
	if pcm.Profile.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth %d", pcm.Profile.BitDepth)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, pcm.Profile.SampleRate, 16, pcm.Profile.Channels, wavFormatPCM)
	samples := make([]int, len(pcm.Data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm.Data[i*2:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: pcm.Profile.Channels, SampleRate: pcm.Profile.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return f.Close()
}

func packInt16(samples []int, srcDepth int) []byte {
	shift := srcDepth - 16
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		switch {
		case shift > 0:
			v >>= uint(shift)
		case shift < 0:
			v <<= uint(-shift)
		}
		// 8-bit WAV is unsigned
		if srcDepth == 8 {
			v -= 128 << 8
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
