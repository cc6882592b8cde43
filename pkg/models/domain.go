package models

// MatchResult represents a song match result with metadata and scoring.
type MatchResult struct {
	SongID     string  `json:"songId"`     // Database ID of the matched song (UUID)
	Title      string  `json:"title"`      // Song title
	Artist     string  `json:"artist"`     // Artist name
	Score      int     `json:"score"`      // Number of matching fingerprint hashes
	OffsetMs   int32   `json:"offsetMs"`   // Time offset in milliseconds
	Confidence float64 `json:"confidence"` // Match confidence as a percentage (0-100)
}

// Song represents a song entry in the catalogue.
type Song struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationMs int    `json:"durationMs"`
}
