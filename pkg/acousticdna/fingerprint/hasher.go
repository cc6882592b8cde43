package fingerprint

import "math"

const (
	MaxFreqBits  = 9
	MaxDeltaBits = 14
	FanOut       = 6
	MinDeltaMs   = 10
	MaxDeltaMs   = 15000
)

// createAddress packs (anchor bin, target bin, delta ms) into 9/9/14 bits.
// ok is false when the pair falls outside the delta window or a field overflows.
func createAddress(anchor, target Peak) (uint32, bool) {
	anchorFreq := uint32(anchor.FreqIdx)
	targetFreq := uint32(target.FreqIdx)
	deltaMs := uint32(math.Round((target.Time - anchor.Time) * 1000.0))

	if deltaMs < MinDeltaMs || deltaMs > MaxDeltaMs {
		return 0, false
	}

	const (
		freqMask  = uint32(1<<MaxFreqBits - 1)
		deltaMask = uint32(1<<MaxDeltaBits - 1)
	)
	if anchorFreq > freqMask || targetFreq > freqMask || deltaMs > deltaMask {
		return 0, false
	}

	return anchorFreq<<(MaxDeltaBits+MaxFreqBits) | targetFreq<<MaxDeltaBits | deltaMs, true
}
