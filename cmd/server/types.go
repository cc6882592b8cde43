package main

import (
	"github.com/himanishpuri/sonicres/pkg/models"
)

// AddSongResponse is the response for POST /api/songs
type AddSongResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []models.Song `json:"songs"`
	Count int           `json:"count"`
}

// DeleteSongResponse is the response for DELETE /api/songs/{id}
type DeleteSongResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MatchResponse is the response for POST /api/match
type MatchResponse struct {
	Matches []models.MatchResult `json:"matches"`
	Count   int                  `json:"count"`
}

// SessionsResponse reports streaming sessions still receiving audio.
type SessionsResponse struct {
	Active int `json:"active"`
}

// ReadyResponse is the response for GET /readyz
type ReadyResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Decoder string            `json:"decoder"`
	Matcher string            `json:"matcher"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
