package models

// Couple is one catalogue entry under a fingerprint hash: the song it came
// from and where in that song the anchor peak sits.
type Couple struct {
	SongID       string // catalogue song ID, a UUID string
	AnchorTimeMs uint32 // anchor peak time from the start of the song
}

// Match is a song that collected aligned hash votes for a query. The
// catalogue service turns each one into a MatchResult.
type Match struct {
	SongID   string
	OffsetMs int32 // catalogue anchor time minus query anchor time
	Count    int   // hashes that agree on OffsetMs
}
