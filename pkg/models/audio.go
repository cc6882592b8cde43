package models

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// PCMProfile describes the sample layout a decoder must produce.
type PCMProfile struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// CanonicalProfile is what every decoded stream is normalized to before matching.
var CanonicalProfile = PCMProfile{SampleRate: 44100, Channels: 1, BitDepth: 16}

func (p PCMProfile) String() string {
	return fmt.Sprintf("%dch/%dHz/%dbit", p.Channels, p.SampleRate, p.BitDepth)
}

// PCM holds decoded audio as signed 16-bit little-endian interleaved samples.
type PCM struct {
	Profile PCMProfile
	Data    []byte
}

// Frames is the number of sample frames held.
func (p PCM) Frames() int {
	stride := p.Profile.Channels * p.Profile.BitDepth / 8
	if stride <= 0 {
		return 0
	}
	return len(p.Data) / stride
}

func (p PCM) Duration() time.Duration {
	if p.Profile.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.Profile.SampleRate)
}

// Float64 returns mono samples scaled to [-1, 1). Multi-channel data is averaged.
func (p PCM) Float64() []float64 {
	ch := p.Profile.Channels
	if ch <= 0 || p.Profile.BitDepth != 16 {
		return nil
	}
	n := p.Frames()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			off := (i*ch + c) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(p.Data[off:])))
		}
		out[i] = sum / float64(ch) / 32768.0
	}
	return out
}

// Identification is the result of a successful match.
type Identification struct {
	TrackName  string
	Artist     string
	Confidence float64
}

// NormalizeConfidence maps non-finite values to 0 and clamps into [0, 1].
func NormalizeConfidence(c float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
