package acousticdna

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/logger"
	"github.com/himanishpuri/sonicres/pkg/models"
)

// setupTestService creates a test service with a temporary database
func setupTestService(t *testing.T) *acousticService {
	t.Helper()

	tmpDir := t.TempDir()
	svc, err := NewService(
		WithDBPath(filepath.Join(tmpDir, "test_service_acoustic.sqlite3")),
		WithTempDir(tmpDir),
		WithLogger(logger.Discard()),
	)
	if err != nil {
		t.Fatalf("Failed to create test service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
	})
	return svc.(*acousticService)
}

func tones(seed int64, seconds float64, sampleRate int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	n := int(seconds * float64(sampleRate))
	noteLen := sampleRate / 10
	out := make([]float64, n)
	var freq float64
	for i := range out {
		if i%noteLen == 0 {
			freq = 200 + rng.Float64()*3000
		}
		out[i] = 0.7 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestNewService(t *testing.T) {
	svc := setupTestService(t)
	if svc.storage == nil {
		t.Fatal("Expected non-nil storage")
	}
	if svc.config.SampleRate != 11025 {
		t.Errorf("default sample rate = %d", svc.config.SampleRate)
	}
	if err := svc.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestMatchSamplesFindsCatalogueSong(t *testing.T) {
	svc := setupTestService(t)
	const sr = 11025

	idA, err := svc.addSamples(tones(3, 10, sr), sr, "Alpha", "Band")
	if err != nil {
		t.Fatalf("addSamples failed: %v", err)
	}
	if _, err := svc.addSamples(tones(4, 10, sr), sr, "Beta", "Band"); err != nil {
		t.Fatalf("addSamples failed: %v", err)
	}

	songs, err := svc.ListSongs()
	if err != nil || len(songs) != 2 {
		t.Fatalf("ListSongs = %v, %v", songs, err)
	}

	// Query at 44.1kHz so the decimation path is exercised. The clip starts on
	// a hop boundary of the decimated signal.
	start := 86 * 256 * 4
	query := tones(3, 10, sr*4)[start : start+4*sr*4]
	results, err := svc.MatchSamples(context.Background(), query, sr*4)
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one match")
	}
	top := results[0]
	if top.SongID != idA || top.Title != "Alpha" {
		t.Errorf("top match = %+v, want Alpha", top)
	}
	if top.Confidence <= 0 || top.Confidence > 100 {
		t.Errorf("confidence %v outside (0,100]", top.Confidence)
	}
}

func TestMatchSamplesTooShort(t *testing.T) {
	svc := setupTestService(t)
	results, err := svc.MatchSamples(context.Background(), make([]float64, 100), 11025)
	if err != nil {
		t.Fatalf("short query should not error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestMatchSamplesEmptyCatalogue(t *testing.T) {
	svc := setupTestService(t)
	results, err := svc.MatchSamples(context.Background(), tones(1, 3, 11025), 11025)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no matches against empty catalogue, got %d", len(results))
	}
}

func TestDeleteSong(t *testing.T) {
	svc := setupTestService(t)
	id, err := svc.addSamples(tones(5, 3, 11025), 11025, "Temp", "Artist")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSong(id); err != nil {
		t.Fatalf("DeleteSong failed: %v", err)
	}
	if _, err := svc.GetSongByID(id); !IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

type failingStorage struct {
	Storage
	deleted []string
}

func (f *failingStorage) RegisterSong(string, string, int) (string, error) { return "song-1", nil }
func (f *failingStorage) StoreFingerprints(map[uint32][]models.Couple) error {
	return errors.New("disk full")
}
func (f *failingStorage) DeleteSongByID(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// TestAddSongRollback checks the song row is removed when fingerprints can't be stored
func TestAddSongRollback(t *testing.T) {
	stor := &failingStorage{}
	svc, err := NewService(WithStorage(stor), WithLogger(logger.Discard()))
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.(*acousticService).addSamples(tones(6, 3, 11025), 11025, "X", "Y")
	if err == nil {
		t.Fatal("expected error from failing storage")
	}
	if len(stor.deleted) != 1 || stor.deleted[0] != "song-1" {
		t.Errorf("rollback deletes = %v", stor.deleted)
	}
}

func TestCalculateConfidence(t *testing.T) {
	if c := calculateConfidence(0, 100, 100); c != 0 {
		t.Errorf("zero matches should give 0, got %v", c)
	}
	weak := calculateConfidence(3, 1000, 1000)
	strong := calculateConfidence(400, 1000, 1000)
	if weak >= strong {
		t.Errorf("weak %v should be below strong %v", weak, strong)
	}
	if strong > 100 {
		t.Errorf("confidence above 100: %v", strong)
	}
}

// TestAddAndMatchFile drives the ffmpeg conversion path end to end.
func TestAddAndMatchFile(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	svc := setupTestService(t)

	samples := tones(8, 8, 22050)
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s * 32767)
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	src := filepath.Join(t.TempDir(), "song.wav")
	if err := audio.WriteWAV(src, models.PCM{
		Profile: models.PCMProfile{SampleRate: 22050, Channels: 1, BitDepth: 16},
		Data:    data,
	}); err != nil {
		t.Fatal(err)
	}

	id, err := svc.AddSong(context.Background(), src, "File Song", "File Artist")
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}
	results, err := svc.MatchSong(context.Background(), src)
	if err != nil {
		t.Fatalf("MatchSong failed: %v", err)
	}
	if len(results) == 0 || results[0].SongID != id {
		t.Errorf("expected file to match itself, got %v", results)
	}
}
