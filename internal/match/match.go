// Package match identifies decoded audio.
package match

import (
	"context"
	"errors"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// ErrNoMatch is returned when the audio could be analysed but nothing in the
// catalogue is a convincing match.
var ErrNoMatch = errors.New("no match found")

// Matcher identifies canonical PCM. Implementations must honour ctx and may
// return a confidence outside [0, 1]; callers normalize it.
type Matcher interface {
	Match(ctx context.Context, pcm models.PCM) (models.Identification, error)
}

// Static always answers with the same identification. It stands in for a
// real engine in demos and load tests.
type Static struct {
	Result models.Identification
}

func NewStatic() *Static {
	return &Static{Result: models.Identification{
		TrackName:  "Demo Song",
		Artist:     "Demo Artist",
		Confidence: 0.85,
	}}
}

func (s *Static) Match(ctx context.Context, _ models.PCM) (models.Identification, error) {
	if err := ctx.Err(); err != nil {
		return models.Identification{}, err
	}
	return s.Result, nil
}
