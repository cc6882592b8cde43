package fingerprint

import (
	"math"
	"sort"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// pairs walks peaks in time order and calls fn for every anchor/target pair
// that yields a valid address, up to FanOut targets per anchor.
func pairs(peaks []Peak, fn func(addr uint32, anchor Peak)) {
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Time < peaks[j].Time })
	for i := range peaks {
		paired := 0
		for j := i + 1; j < len(peaks) && paired < FanOut; j++ {
			addr, ok := createAddress(peaks[i], peaks[j])
			if !ok {
				continue
			}
			fn(addr, peaks[i])
			paired++
		}
	}
}

func anchorMs(p Peak) uint32 {
	return uint32(math.Round(p.Time * 1000.0))
}

// Fingerprint produces hash -> couples for the provided peaks and song.
func Fingerprint(peaks []Peak, songID string) map[uint32][]models.Couple {
	fp := make(map[uint32][]models.Couple)
	pairs(peaks, func(addr uint32, anchor Peak) {
		fp[addr] = append(fp[addr], models.Couple{SongID: songID, AnchorTimeMs: anchorMs(anchor)})
	})
	return fp
}

// Hashes returns the distinct addresses produced by peaks.
func Hashes(peaks []Peak) []uint32 {
	seen := make(map[uint32]struct{})
	out := make([]uint32, 0, len(peaks)*FanOut)
	pairs(peaks, func(addr uint32, _ Peak) {
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	})
	return out
}

// QueryFingerprints votes every (song, dbAnchor-queryAnchor) offset hit by the
// query's hashes and returns each song's best offset, strongest first.
func QueryFingerprints(queryPeaks []Peak, db map[uint32][]models.Couple) []models.Match {
	votes := make(map[string]map[int32]int)

	pairs(queryPeaks, func(addr uint32, anchor Peak) {
		for _, cou := range db[addr] {
			offset := int32(cou.AnchorTimeMs) - int32(anchorMs(anchor))
			m, ok := votes[cou.SongID]
			if !ok {
				m = make(map[int32]int)
				votes[cou.SongID] = m
			}
			m[offset]++
		}
	})

	matches := make([]models.Match, 0, len(votes))
	for songID, offsets := range votes {
		best := models.Match{SongID: songID}
		for off, cnt := range offsets {
			if cnt > best.Count || (cnt == best.Count && off < best.OffsetMs) {
				best.Count, best.OffsetMs = cnt, off
			}
		}
		if best.Count > 0 {
			matches = append(matches, best)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Count == matches[j].Count {
			return matches[i].SongID < matches[j].SongID
		}
		return matches[i].Count > matches[j].Count
	})
	return matches
}

// Analyze runs the spectrogram and peak stages over mono samples.
func Analyze(samples []float64, sampleRate int) ([]Peak, error) {
	spec, err := ComputeSpectrogramFromSamples(samples, sampleRate, 0, 0)
	if err != nil {
		return nil, err
	}
	return ExtractPeaks(spec, sampleRate), nil
}
