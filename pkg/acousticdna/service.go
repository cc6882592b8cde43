package acousticdna

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/acousticdna/fingerprint"
	"github.com/himanishpuri/sonicres/pkg/logger"
	"github.com/himanishpuri/sonicres/pkg/models"
	"github.com/himanishpuri/sonicres/pkg/utils"
)

// acousticService is the default implementation of the Service interface.
type acousticService struct {
	storage Storage
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	stor := cfg.Storage
	if stor == nil {
		var err error
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &acousticService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// loadMono converts any ffmpeg-readable file to mono samples at the catalogue rate.
func (s *acousticService) loadMono(ctx context.Context, audioPath string) ([]float64, int, error) {
	wavPath, err := audio.ConvertToMonoWAV(ctx, audioPath, s.config.TempDir, audio.ConvertWAVConfig{
		SampleRate: s.config.SampleRate,
		Binary:     s.config.FFmpegBinary,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("audio conversion failed: %w", err)
	}
	defer utils.DeleteFile(wavPath)

	samples, sampleRate, err := audio.ReadWavAsFloat64(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV file: %w", err)
	}
	return samples, sampleRate, nil
}

// AddSong fingerprints an audio file and stores it in the catalogue.
func (s *acousticService) AddSong(ctx context.Context, audioPath, title, artist string) (string, error) {
	s.log.Infof("Processing song: %s by %s", title, artist)

	samples, sampleRate, err := s.loadMono(ctx, audioPath)
	if err != nil {
		return "", err
	}
	return s.addSamples(samples, sampleRate, title, artist)
}

func (s *acousticService) addSamples(samples []float64, sampleRate int, title, artist string) (string, error) {
	peaks, err := fingerprint.Analyze(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("spectrogram generation failed: %w", err)
	}
	s.log.Infof("Extracted %d peaks", len(peaks))

	duration := float64(len(samples)) / float64(sampleRate)
	songID, err := s.storage.RegisterSong(title, artist, int(duration*1000))
	if err != nil {
		return "", fmt.Errorf("failed to register song: %w", err)
	}

	fps := fingerprint.Fingerprint(peaks, songID)
	s.log.Infof("Generated %d unique hashes", len(fps))

	if err := s.storage.StoreFingerprints(fps); err != nil {
		if delErr := s.storage.DeleteSongByID(songID); delErr != nil {
			s.log.Warnf("Rollback of song %s failed: %v", songID, delErr)
		}
		return "", fmt.Errorf("failed to store fingerprints: %w", err)
	}

	s.log.Infof("Successfully added song ID=%s", songID)
	return songID, nil
}

// MatchSong finds catalogue matches for an audio file.
func (s *acousticService) MatchSong(ctx context.Context, audioPath string) ([]models.MatchResult, error) {
	s.log.Infof("Matching audio: %s", audioPath)

	samples, sampleRate, err := s.loadMono(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	return s.MatchSamples(ctx, samples, sampleRate)
}

// MatchSamples matches mono samples already in memory. Samples at a rate other
// than the catalogue's are resampled first.
func (s *acousticService) MatchSamples(ctx context.Context, samples []float64, sampleRate int) ([]models.MatchResult, error) {
	if sampleRate != s.config.SampleRate {
		samples = fingerprint.Resample(samples, sampleRate, s.config.SampleRate)
		sampleRate = s.config.SampleRate
	}

	queryPeaks, err := fingerprint.Analyze(samples, sampleRate)
	if err != nil {
		if errors.Is(err, fingerprint.ErrTooShort) {
			return nil, nil
		}
		return nil, fmt.Errorf("spectrogram generation failed: %w", err)
	}
	s.log.Debugf("Query has %d peaks", len(queryPeaks))

	hashes := fingerprint.Hashes(queryPeaks)
	s.log.Debugf("Generated %d query hashes", len(hashes))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dbMap, err := s.storage.GetCouplesByHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	s.log.Debugf("Retrieved couples for %d/%d hashes", len(dbMap), len(hashes))

	matches := fingerprint.QueryFingerprints(queryPeaks, dbMap)
	s.log.Debugf("Found %d candidate matches", len(matches))

	results := make([]models.MatchResult, 0, len(matches))
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		song, err := s.storage.GetSongByID(match.SongID)
		if err != nil {
			s.log.Warnf("Failed to get song %s: %v", match.SongID, err)
			continue
		}

		dbCount, err := s.storage.FingerprintCount(match.SongID)
		if err != nil {
			s.log.Warnf("Failed to get fingerprint count for song %s: %v", match.SongID, err)
			dbCount = len(hashes)
		}

		results = append(results, models.MatchResult{
			SongID:     match.SongID,
			Title:      song.Title,
			Artist:     song.Artist,
			Score:      match.Count,
			OffsetMs:   match.OffsetMs,
			Confidence: calculateConfidence(match.Count, len(hashes), dbCount),
		})
	}
	return results, nil
}

// calculateConfidence maps an aligned-hash count to a 0-100 score. The ratio is
// taken against the smaller of the two fingerprint sets and passed through a
// logistic curve centred on 15%, with a linear boost above 30% and a penalty
// for fewer than five aligned hashes.
func calculateConfidence(matchCount, queryFPCount, dbFPCount int) float64 {
	if matchCount == 0 || queryFPCount == 0 || dbFPCount == 0 {
		return 0.0
	}

	ratio := float64(matchCount) / float64(min(queryFPCount, dbFPCount))

	const (
		steepness = 20.0
		midpoint  = 0.15
	)
	confidence := 100.0 / (1.0 + math.Exp(-steepness*(ratio-midpoint)))

	if ratio > 0.30 {
		confidence = math.Min(100.0, confidence+(ratio-0.30)*50)
	}
	if matchCount < 5 {
		confidence *= float64(matchCount) / 5.0
	}
	return confidence
}

func (s *acousticService) GetSongByID(songID string) (*models.Song, error) {
	return s.storage.GetSongByID(songID)
}

func (s *acousticService) ListSongs() ([]models.Song, error) {
	return s.storage.ListSongs()
}

func (s *acousticService) DeleteSong(songID string) error {
	return s.storage.DeleteSongByID(songID)
}

func (s *acousticService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

func (s *acousticService) Close() error {
	return s.storage.Close()
}
