package fingerprint

import (
	"math"
	"math/rand"
	"testing"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// melody renders a sequence of pseudo-random tones, one every 100ms.
func melody(seed int64, seconds float64, sampleRate int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	n := int(seconds * float64(sampleRate))
	noteLen := sampleRate / 10
	out := make([]float64, n)
	var freq float64
	for i := 0; i < n; i++ {
		if i%noteLen == 0 {
			freq = 200 + rng.Float64()*3000
		}
		t := float64(i) / float64(sampleRate)
		out[i] = 0.6*math.Sin(2*math.Pi*freq*t) + 0.2*math.Sin(2*math.Pi*freq*1.5*t)
	}
	return out
}

func TestHamming(t *testing.T) {
	for _, size := range []int{128, 256, 512, 1024} {
		window := Hamming(size)
		if len(window) != size {
			t.Errorf("Expected window size %d, got %d", size, len(window))
		}
		for i, val := range window {
			if val < 0 || val > 1 {
				t.Errorf("Window value %d out of range [0,1]: %f", i, val)
			}
		}
		if window[0] >= window[size/2] {
			t.Error("Hamming window should be lower at edges")
		}
	}
}

func TestMagnitudeSpectrum(t *testing.T) {
	mag := MagnitudeSpectrum([]complex128{complex(1, 0), complex(3, 4), 0, 0})
	if len(mag) != 2 {
		t.Fatalf("Expected magnitude length 2, got %d", len(mag))
	}
	if mag[0] != 1.0 || mag[1] != 5.0 {
		t.Errorf("unexpected magnitudes %v", mag)
	}
}

func TestSTFT(t *testing.T) {
	samples := make([]float64, 11025)
	spec, err := STFT(samples, 128, 64, Hamming(128))
	if err != nil {
		t.Fatalf("STFT failed: %v", err)
	}
	wantFrames := (len(samples)-128)/64 + 1
	if len(spec) != wantFrames {
		t.Errorf("Expected %d frames, got %d", wantFrames, len(spec))
	}
	if len(spec[0]) != 64 {
		t.Errorf("Expected 64 frequency bins, got %d", len(spec[0]))
	}
}

func TestSTFTInvalidInput(t *testing.T) {
	if _, err := STFT(make([]float64, 50), 128, 64, Hamming(128)); err != ErrTooShort {
		t.Errorf("Expected ErrTooShort, got %v", err)
	}
	if _, err := STFT(make([]float64, 1000), 128, 64, Hamming(64)); err == nil {
		t.Error("Expected error with mismatched window size")
	}
}

func TestDecimate(t *testing.T) {
	got := Decimate([]float64{1, 3, 5, 7, 9}, 2)
	want := []float64{2, 6}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Decimate = %v, want %v", got, want)
	}
	same := []float64{1, 2}
	if out := Decimate(same, 1); &out[0] != &same[0] {
		t.Error("factor 1 should return the input unchanged")
	}
}

func TestExtractPeaksOrderingAndBounds(t *testing.T) {
	const sr = 11025
	spec, err := ComputeSpectrogramFromSamples(melody(1, 3, sr), sr, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	peaks := ExtractPeaks(spec, sr)
	if len(peaks) == 0 {
		t.Fatal("No peaks extracted")
	}
	for i, p := range peaks {
		if i > 0 {
			prev := peaks[i-1]
			if p.TimeIdx < prev.TimeIdx || (p.TimeIdx == prev.TimeIdx && p.FreqIdx < prev.FreqIdx) {
				t.Fatalf("peaks not sorted at %d", i)
			}
		}
		if p.FreqIdx < 0 || p.FreqIdx >= len(spec[0]) {
			t.Errorf("Peak %d has invalid freq index: %d", i, p.FreqIdx)
		}
		if p.Freq < 0 || p.Freq > sr/2 {
			t.Errorf("Peak %d has invalid frequency: %f", i, p.Freq)
		}
	}
}

func TestExtractPeaksEmptySpectrogram(t *testing.T) {
	if peaks := ExtractPeaks(nil, 11025); len(peaks) > 0 {
		t.Error("Expected no peaks from empty spectrogram")
	}
}

func TestCreateAddressBounds(t *testing.T) {
	a := Peak{FreqIdx: 12, Time: 1.0}
	if _, ok := createAddress(a, Peak{FreqIdx: 40, Time: 1.005}); ok {
		t.Error("delta below MinDeltaMs should be rejected")
	}
	if _, ok := createAddress(a, Peak{FreqIdx: 40, Time: 20}); ok {
		t.Error("delta above MaxDeltaMs should be rejected")
	}
	if _, ok := createAddress(a, Peak{FreqIdx: 600, Time: 1.5}); ok {
		t.Error("frequency index over 9 bits should be rejected")
	}
	addr, ok := createAddress(a, Peak{FreqIdx: 40, Time: 1.5})
	if !ok {
		t.Fatal("valid pair rejected")
	}
	if addr>>23 != 12 || (addr>>14)&0x1ff != 40 || addr&0x3fff != 500 {
		t.Errorf("address fields wrong: %032b", addr)
	}
}

func TestQueryFingerprintsFindsSourceAtOffset(t *testing.T) {
	const sr = 11025
	db := make(map[uint32][]models.Couple)
	for id, seed := range map[string]int64{"song-a": 7, "song-b": 99} {
		peaks, err := Analyze(melody(seed, 8, sr), sr)
		if err != nil {
			t.Fatal(err)
		}
		for h, cs := range Fingerprint(peaks, id) {
			db[h] = append(db[h], cs...)
		}
	}

	// A clip of song-b starting 40 hops in, so frames line up with the catalogue.
	start := 40 * HopSize
	clip := melody(99, 8, sr)[start : start+4*sr]
	peaks, err := Analyze(clip, sr)
	if err != nil {
		t.Fatal(err)
	}
	if len(Hashes(peaks)) == 0 {
		t.Fatal("query produced no hashes")
	}

	matches := QueryFingerprints(peaks, db)
	if len(matches) == 0 {
		t.Fatal("no matches")
	}
	top := matches[0]
	if top.SongID != "song-b" {
		t.Fatalf("top match = %s, want song-b (matches %v)", top.SongID, matches)
	}
	wantOffset := int32(math.Round(float64(start) / sr * 1000))
	if d := top.OffsetMs - wantOffset; d < -2 || d > 2 {
		t.Errorf("offset = %dms, want ~%dms", top.OffsetMs, wantOffset)
	}
	if len(matches) > 1 && matches[1].Count >= top.Count {
		t.Errorf("runner-up %v not weaker than top %v", matches[1], top)
	}
}
