package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/sonicres/internal/config"
	"github.com/himanishpuri/sonicres/internal/observe"
	"github.com/himanishpuri/sonicres/internal/stream"
	"github.com/himanishpuri/sonicres/pkg/acousticdna"
	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/logger"
	"github.com/himanishpuri/sonicres/pkg/models"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service acousticdna.Service
	hub     *stream.Hub
	ws      http.Handler
	config  *config.Config
	metrics *observe.Metrics
	log     acousticdna.Logger

	// decoderReady reports whether the configured decode backend can run.
	decoderReady func() error
	// probe reads tags from an uploaded file.
	probe func(ctx context.Context, path string) (*audio.Metadata, error)
}

// NewServer creates a new server instance
func NewServer(service acousticdna.Service, hub *stream.Hub, cfg *config.Config, metrics *observe.Metrics) *Server {
	log := logger.GetLogger()
	return &Server{
		service: service,
		hub:     hub,
		ws: stream.NewHandler(hub, stream.HandlerConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			ReadLimit:      cfg.Stream.ReadLimitBytes,
			IdleTimeout:    cfg.Stream.IdleTimeout,
			Log:            log.WithPrefix("[ws]"),
		}),
		config:       cfg,
		metrics:      metrics,
		log:          log,
		decoderReady: func() error { return decoderAvailable(cfg.Decoder) },
		probe:        audio.ReadMetadataFFmpeg,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "sonicres",
		"version": version,
		"endpoints": map[string]string{
			"stream":     "GET /ws/audio",
			"health":     "GET /health",
			"ready":      "GET /readyz",
			"metrics":    "GET /metrics",
			"songs":      "GET /api/songs",
			"addSong":    "POST /api/songs",
			"getSong":    "GET /api/songs/{id}",
			"deleteSong": "DELETE /api/songs/{id}",
			"matchFile":  "POST /api/match",
			"sessions":   "GET /api/sessions",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{
		Status:  "ready",
		Checks:  map[string]string{"catalog": "ok", "decoder": "ok"},
		Decoder: string(s.config.Decoder.Backend),
		Matcher: string(s.config.Matcher.Backend),
	}
	if err := s.service.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Checks["catalog"] = err.Error()
	}
	if err := s.decoderReady(); err != nil {
		resp.Status = "unavailable"
		resp.Checks["decoder"] = err.Error()
	}

	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, resp)
}

// handleSessions handles GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, SessionsResponse{Active: s.hub.SessionCount()})
}

// handleListSongs handles GET /api/songs
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.service.ListSongs()
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}
	if songs == nil {
		songs = []models.Song{}
	}
	s.respondJSON(w, http.StatusOK, ListSongsResponse{Songs: songs, Count: len(songs)})
}

// handleGetSong handles GET /api/songs/{id}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	songID := r.PathValue("id")
	song, err := s.service.GetSongByID(songID)
	if err != nil {
		s.songLookupError(w, songID, err)
		return
	}
	s.respondJSON(w, http.StatusOK, song)
}

// handleDeleteSong handles DELETE /api/songs/{id}
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	songID := r.PathValue("id")
	song, err := s.service.GetSongByID(songID)
	if err != nil {
		s.songLookupError(w, songID, err)
		return
	}

	if err := s.service.DeleteSong(songID); err != nil {
		if acousticdna.IsNotFound(err) {
			s.songLookupError(w, songID, err)
			return
		}
		s.log.Errorf("Failed to delete song %s: %v", songID, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete song")
		return
	}

	s.log.Infof("Deleted song: %s by %s (ID: %s)", song.Title, song.Artist, songID)
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{
		Message: "Song deleted successfully",
		ID:      songID,
	})
}

func (s *Server) songLookupError(w http.ResponseWriter, songID string, err error) {
	if acousticdna.IsNotFound(err) {
		s.log.Warnf("Song not found: %s", songID)
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song with ID %s not found", songID))
		return
	}
	s.log.Errorf("Failed to load song %s: %v", songID, err)
	s.respondError(w, http.StatusInternalServerError, "Failed to retrieve song")
}

// saveUpload copies the multipart "audio" field to a temp file the caller
// must remove.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	limit := s.config.Server.MaxUploadBytes
	if r.ContentLength > limit {
		s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(limit))))
		return "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(tooBig.Limit))))
			return "", false
		}
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return "", false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return "", false
	}
	defer file.Close()

	out, err := os.CreateTemp(s.config.Stream.TempDir, prefix+"-*"+filepath.Ext(header.Filename))
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return "", false
	}
	n, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		s.log.Errorf("Failed to save file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return "", false
	}
	s.log.Debugf("Saved upload %s (%s)", header.Filename, humanize.Bytes(uint64(n)))
	return out.Name(), true
}

// handleAddSong handles POST /api/songs (multipart file upload). Missing
// title or artist are taken from the file's tags when present.
func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	path, ok := s.saveUpload(w, r, "upload")
	if !ok {
		return
	}
	defer os.Remove(path)

	title := r.FormValue("title")
	artist := r.FormValue("artist")
	if title == "" || artist == "" {
		if meta, err := s.probe(ctx, path); err == nil {
			if title == "" {
				title = meta.Title
			}
			if artist == "" {
				artist = meta.Artist
			}
		} else {
			s.log.Debugf("Could not read tags from upload: %v", err)
		}
	}
	if title == "" || artist == "" {
		s.respondError(w, http.StatusBadRequest, "title and artist are required")
		return
	}

	s.log.Infof("Adding song from file: %s by %s", title, artist)
	songID, err := s.service.AddSong(ctx, path, title, artist)
	if err != nil {
		s.log.Errorf("Failed to add song: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to add song: %v", err))
		return
	}

	s.log.Infof("Successfully added song: %s by %s (ID: %s)", title, artist, songID)
	s.respondJSON(w, http.StatusCreated, AddSongResponse{
		Message: "Song added successfully",
		ID:      songID,
		Title:   title,
		Artist:  artist,
	})
}

// handleMatch handles POST /api/match (multipart file upload)
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, ok := s.saveUpload(w, r, "query")
	if !ok {
		return
	}
	defer os.Remove(path)

	matches, err := s.service.MatchSong(ctx, path)
	if err != nil {
		s.log.Errorf("Failed to match song: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to match song: %v", err))
		return
	}

	if matches == nil {
		matches = []models.MatchResult{}
	}
	s.log.Infof("Match complete: found %d matches", len(matches))
	s.respondJSON(w, http.StatusOK, MatchResponse{Matches: matches, Count: len(matches)})
}
