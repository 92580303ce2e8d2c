package models

import "strings"

// Track represents a music track from any service
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	Duration   int      `json:"duration"` // seconds
	ISRC       string   `json:"isrc,omitempty"`
	Popularity int      `json:"popularity"`
	Explicit   bool     `json:"explicit"`
}

// Artist returns the primary artist, or "" when none is known.
func (t Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ArtistLine joins every credited artist with ", ".
func (t Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// SavedTrack is a liked song with the (RFC 3339) time it was saved.
type SavedTrack struct {
	AddedAt string `json:"added_at"`
	Track   Track  `json:"track"`
}

// Playlist represents a music playlist from any service
type Playlist struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Public        bool   `json:"public"`
	Collaborative bool   `json:"collaborative"`
	URI           string `json:"uri"`
	URL           string `json:"url"`
	TrackCount    int    `json:"track_count"`
}

// URIs returns the track URIs in order, skipping tracks without one.
func URIs(tracks []SavedTrack) []string {
	uris := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.Track.URI != "" {
			uris = append(uris, t.Track.URI)
		}
	}
	return uris
}
