package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_acoustic.sqlite3")
	client, err := NewDBClientWithPath(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client, dbPath
}

func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

// TestRegisterSongIsIdempotent checks that title+artist identifies a song
func TestRegisterSongIsIdempotent(t *testing.T) {
	client, _ := setupTestDB(t)

	id1, err := client.RegisterSong("Test Song", "Test Artist", 180000)
	if err != nil {
		t.Fatalf("Failed to register song: %v", err)
	}
	if id1 == "" {
		t.Fatal("Expected non-empty song ID")
	}

	id2, err := client.RegisterSong("Test Song", "Test Artist", 180000)
	if err != nil {
		t.Fatalf("Second registration failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Expected same ID for duplicate song, got %s and %s", id1, id2)
	}

	song, err := client.GetSongByID(id1)
	if err != nil {
		t.Fatalf("GetSongByID failed: %v", err)
	}
	if song.Title != "Test Song" || song.Artist != "Test Artist" || song.DurationMs != 180000 {
		t.Errorf("unexpected song %+v", song)
	}
}

func TestStoreAndLookupFingerprints(t *testing.T) {
	client, _ := setupTestDB(t)

	songID, err := client.RegisterSong("Song", "Artist", 1000)
	if err != nil {
		t.Fatal(err)
	}

	fps := map[uint32][]models.Couple{
		100: {{SongID: songID, AnchorTimeMs: 10}, {SongID: songID, AnchorTimeMs: 20}},
		200: {{SongID: songID, AnchorTimeMs: 30}},
	}
	// enough entries to cross the in-memory flush threshold
	for h := uint32(1000); h < 2200; h++ {
		fps[h] = []models.Couple{{SongID: songID, AnchorTimeMs: h}}
	}
	if err := client.StoreFingerprints(fps); err != nil {
		t.Fatalf("StoreFingerprints failed: %v", err)
	}

	count, err := client.FingerprintCount(songID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3+1200 {
		t.Errorf("FingerprintCount = %d, want %d", count, 3+1200)
	}

	hashes := []uint32{100, 200, 999999}
	for h := uint32(1000); h < 1700; h++ {
		hashes = append(hashes, h)
	}
	got, err := client.GetCouplesByHashes(context.Background(), hashes)
	if err != nil {
		t.Fatalf("GetCouplesByHashes failed: %v", err)
	}
	if len(got[100]) != 2 || len(got[200]) != 1 {
		t.Errorf("unexpected buckets: 100=%v 200=%v", got[100], got[200])
	}
	if _, ok := got[999999]; ok {
		t.Error("unknown hash should have no bucket")
	}
	if len(got[1699]) != 1 {
		t.Error("hash from the second lookup batch is missing")
	}
}

func TestDeleteSongByID(t *testing.T) {
	client, _ := setupTestDB(t)

	songID, _ := client.RegisterSong("Gone", "Soon", 1)
	if err := client.StoreFingerprints(map[uint32][]models.Couple{7: {{SongID: songID, AnchorTimeMs: 1}}}); err != nil {
		t.Fatal(err)
	}

	if err := client.DeleteSongByID(songID); err != nil {
		t.Fatalf("DeleteSongByID failed: %v", err)
	}
	if _, err := client.GetSongByID(songID); !errors.Is(err, ErrSongNotFound) {
		t.Errorf("expected ErrSongNotFound, got %v", err)
	}
	if n, _ := client.FingerprintCount(songID); n != 0 {
		t.Errorf("fingerprints not deleted, %d left", n)
	}
	if err := client.DeleteSongByID(songID); !errors.Is(err, ErrSongNotFound) {
		t.Errorf("second delete should report ErrSongNotFound, got %v", err)
	}
}

func TestListSongs(t *testing.T) {
	client, _ := setupTestDB(t)

	songs, err := client.ListSongs()
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 0 {
		t.Errorf("expected empty catalogue, got %d", len(songs))
	}

	client.RegisterSong("A", "X", 1)
	client.RegisterSong("B", "Y", 2)
	songs, err = client.ListSongs()
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 2 {
		t.Errorf("expected 2 songs, got %d", len(songs))
	}
}
