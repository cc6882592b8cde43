package match

import (
	"context"
	"fmt"

	"github.com/himanishpuri/sonicres/pkg/acousticdna"
	"github.com/himanishpuri/sonicres/pkg/models"
)

// SampleMatcher is the slice of the catalogue service the fingerprint matcher needs.
type SampleMatcher interface {
	MatchSamples(ctx context.Context, samples []float64, sampleRate int) ([]models.MatchResult, error)
}

var _ SampleMatcher = acousticdna.Service(nil)

// Fingerprint matches against an acoustic fingerprint catalogue.
type Fingerprint struct {
	catalog       SampleMatcher
	minConfidence float64
}

// NewFingerprint returns a matcher that rejects results whose confidence,
// scaled to [0, 1], is below minConfidence.
func NewFingerprint(catalog SampleMatcher, minConfidence float64) *Fingerprint {
	return &Fingerprint{catalog: catalog, minConfidence: minConfidence}
}

func (f *Fingerprint) Match(ctx context.Context, pcm models.PCM) (models.Identification, error) {
	samples := pcm.Float64()
	if len(samples) == 0 {
		return models.Identification{}, fmt.Errorf("unsupported PCM layout %s", pcm.Profile)
	}

	results, err := f.catalog.MatchSamples(ctx, samples, pcm.Profile.SampleRate)
	if err != nil {
		return models.Identification{}, err
	}
	if len(results) == 0 {
		return models.Identification{}, ErrNoMatch
	}

	top := results[0]
	confidence := top.Confidence / 100
	if confidence < f.minConfidence {
		return models.Identification{}, ErrNoMatch
	}
	return models.Identification{
		TrackName:  top.Title,
		Artist:     top.Artist,
		Confidence: confidence,
	}, nil
}
