package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/sonicres/pkg/models"
)

const DefaultDBFile = "acousticdna.sqlite3"

var (
	errDBClientNil  = errors.New("db client is nil")
	ErrSongNotFound = errors.New("song not found")
)

// lookupBatch keeps IN (...) lists under SQLite's host parameter limit.
const lookupBatch = 500

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Song struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Title      string `gorm:"uniqueIndex:idx_song_unique,priority:1;index:idx_song_meta,priority:1" json:"title"`
	Artist     string `gorm:"uniqueIndex:idx_song_unique,priority:2;index:idx_song_meta,priority:2" json:"artist"`
	DurationMs int    `json:"duration_ms"`
	CreatedAt  time.Time
}

type Fingerprint struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Hash         uint32 `gorm:"index:idx_hash" json:"hash"`
	SongID       string `gorm:"type:varchar(36);index:idx_song" json:"song_id"`
	AnchorTimeMs uint32 `json:"anchor_time_ms"`
}

func (s Song) toModel() models.Song {
	return models.Song{ID: s.ID, Title: s.Title, Artist: s.Artist, DurationMs: s.DurationMs}
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Song{}, &Fingerprint{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return errDBClientNil
	}
	return c.db.PingContext(ctx)
}

// RegisterSong returns the ID of the song with this title and artist, creating
// it if needed.
func (c *DBClient) RegisterSong(title, artist string, durationMs int) (string, error) {
	if c == nil || c.DB == nil {
		return "", errDBClientNil
	}

	var song Song
	err := c.DB.Where("title = ? AND artist = ?", title, artist).First(&song).Error
	if err == nil {
		return song.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing song: %w", err)
	}

	song = Song{ID: uuid.NewString(), Title: title, Artist: artist, DurationMs: durationMs}
	if err := c.DB.Create(&song).Error; err != nil {
		// Lost a race with a concurrent insert of the same song.
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "constraint failed") {
			if fetchErr := c.DB.Where("title = ? AND artist = ?", title, artist).First(&song).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching song after constraint violation: %w", fetchErr)
			}
			return song.ID, nil
		}
		return "", fmt.Errorf("creating song: %w", err)
	}
	return song.ID, nil
}

func (c *DBClient) DeleteSongByID(songID string) error {
	if c == nil || c.DB == nil {
		return errDBClientNil
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", songID).Delete(&Song{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSongNotFound
		}
		return nil
	})
}

func (c *DBClient) StoreFingerprints(fp map[uint32][]models.Couple) error {
	if c == nil || c.DB == nil {
		return errDBClientNil
	}

	entries := make([]Fingerprint, 0, 1024)
	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		if err := c.DB.CreateInBatches(entries, lookupBatch).Error; err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		entries = entries[:0]
		return nil
	}
	for hash, couples := range fp {
		for _, cou := range couples {
			entries = append(entries, Fingerprint{Hash: hash, SongID: cou.SongID, AnchorTimeMs: cou.AnchorTimeMs})
			if len(entries) >= 1000 {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func (c *DBClient) GetCouplesByHashes(ctx context.Context, hashes []uint32) (map[uint32][]models.Couple, error) {
	if c == nil || c.DB == nil {
		return nil, errDBClientNil
	}
	result := make(map[uint32][]models.Couple)
	for start := 0; start < len(hashes); start += lookupBatch {
		end := min(start+lookupBatch, len(hashes))
		var rows []Fingerprint
		if err := c.DB.WithContext(ctx).Where("hash IN ?", hashes[start:end]).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("batch querying fingerprints: %w", err)
		}
		for _, r := range rows {
			result[r.Hash] = append(result[r.Hash], models.Couple{SongID: r.SongID, AnchorTimeMs: r.AnchorTimeMs})
		}
	}
	return result, nil
}

func (c *DBClient) GetSongByID(songID string) (*models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, errDBClientNil
	}
	var song Song
	if err := c.DB.Where("id = ?", songID).First(&song).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, err
	}
	m := song.toModel()
	return &m, nil
}

func (c *DBClient) FingerprintCount(songID string) (int, error) {
	if c == nil || c.DB == nil {
		return 0, errDBClientNil
	}
	var count int64
	if err := c.DB.Model(&Fingerprint{}).Where("song_id = ?", songID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (c *DBClient) ListSongs() ([]models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, errDBClientNil
	}
	var rows []Song
	if err := c.DB.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	songs := make([]models.Song, len(rows))
	for i, r := range rows {
		songs[i] = r.toModel()
	}
	return songs, nil
}
