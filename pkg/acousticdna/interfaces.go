package acousticdna

import (
	"context"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// Service manages a fingerprint catalogue and answers match queries against it.
type Service interface {
	AddSong(ctx context.Context, audioPath, title, artist string) (string, error)
	MatchSong(ctx context.Context, audioPath string) ([]models.MatchResult, error)
	MatchSamples(ctx context.Context, samples []float64, sampleRate int) ([]models.MatchResult, error)
	GetSongByID(songID string) (*models.Song, error)
	ListSongs() ([]models.Song, error)
	DeleteSong(songID string) error
	Ping(ctx context.Context) error
	Close() error
}

type Storage interface {
	RegisterSong(title, artist string, durationMs int) (string, error)
	StoreFingerprints(fingerprints map[uint32][]models.Couple) error
	GetCouplesByHashes(ctx context.Context, hashes []uint32) (map[uint32][]models.Couple, error)
	DeleteSongByID(songID string) error
	GetSongByID(songID string) (*models.Song, error)
	FingerprintCount(songID string) (int, error)
	ListSongs() ([]models.Song, error)
	Ping(ctx context.Context) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
