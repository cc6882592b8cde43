package fingerprint

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
)

const (
	WindowSize = 1024
	HopSize    = 256
)

var ErrTooShort = errors.New("audio too short for window size")

func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func FFTReal(frame []float64) []complex128 {
	return fft.FFTReal(frame)
}

// MagnitudeSpectrum keeps the lower half of the spectrum; the upper half of a
// real signal's FFT mirrors it.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, ErrTooShort
	}

	spectrogram := make([][]float64, 0, (len(samples)-windowSize)/hopSize+1)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}
		spectrogram = append(spectrogram, MagnitudeSpectrum(FFTReal(frame)))
	}
	return spectrogram, nil
}

// ComputeSpectrogram reads a WAV file and returns its magnitude spectrogram
// along with the file's sample rate. Zero sizes select the defaults.
func ComputeSpectrogram(wavPath string, windowSize, hopSize int) ([][]float64, int, error) {
	samples, sr, err := audio.ReadWavAsFloat64(wavPath)
	if err != nil {
		return nil, 0, err
	}
	spec, err := ComputeSpectrogramFromSamples(samples, sr, windowSize, hopSize)
	if err != nil {
		return nil, 0, err
	}
	return spec, sr, nil
}

func ComputeSpectrogramFromSamples(samples []float64, sampleRate, windowSize, hopSize int) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, errors.New("samples cannot be empty")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if windowSize == 0 {
		windowSize = WindowSize
	}
	if hopSize == 0 {
		hopSize = HopSize
	}
	return STFT(samples, windowSize, hopSize, Hamming(windowSize))
}

// Decimate reduces the sample rate by an integer factor, averaging each group
// of factor samples as a crude low-pass.
func Decimate(samples []float64, factor int) []float64 {
	if factor <= 1 {
		return samples
	}
	out := make([]float64, len(samples)/factor)
	for i := range out {
		var sum float64
		for _, s := range samples[i*factor : (i+1)*factor] {
			sum += s
		}
		out[i] = sum / float64(factor)
	}
	return out
}

// Resample converts samples between rates. Integer ratios are decimated,
// anything else is linearly interpolated.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}
	if from > to && from%to == 0 {
		return Decimate(samples, from/to)
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
