package services

import (
	"context"

	"github.com/desertthunder/songmix/internal/models"
	"github.com/desertthunder/songmix/internal/session"
)

// Library is the catalog surface consumed by playlist generation.
type Library interface {
	// LikedSongs returns the user's entire library in server order.
	LikedSongs(ctx context.Context) ([]SpotifySavedTrack, error)

	// TrackDetails resolves any number of track IDs, preserving input order.
	TrackDetails(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error)

	// CreatePlaylist creates an empty playlist owned by the current user.
	CreatePlaylist(ctx context.Context, req PlaylistRequest) (*SpotifyPlaylist, error)

	// AddTracksToPlaylist appends track URIs in order, stopping at the first failed batch.
	AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// Authenticator is the credential lifecycle used by the CLI and the OAuth callback server.
type Authenticator interface {
	IsAuthenticated() bool
	Tokens() (session.Snapshot, bool)
	SetTokens(snap session.Snapshot)
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (session.Snapshot, error)
	RefreshToken(ctx context.Context) (string, error)
	Logout()
}

var (
	_ Library       = (*SpotifyService)(nil)
	_ Authenticator = (*SpotifyService)(nil)
)

// ToTrack converts a wire track into a [models.Track].
func ToTrack(t SpotifyTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	return models.Track{
		ID:         t.ID,
		URI:        t.URI,
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		Duration:   t.DurationMS / 1000,
		ISRC:       t.ExternalIDs.ISRC,
		Popularity: t.Popularity,
		Explicit:   t.Explicit,
	}
}

// ToSavedTracks converts a library listing, keeping order.
func ToSavedTracks(items []SpotifySavedTrack) []models.SavedTrack {
	saved := make([]models.SavedTrack, len(items))
	for i, item := range items {
		saved[i] = models.SavedTrack{AddedAt: item.AddedAt, Track: ToTrack(item.Track)}
	}
	return saved
}

// ToPlaylist converts a created playlist into a [models.Playlist].
func ToPlaylist(p SpotifyPlaylist) models.Playlist {
	return models.Playlist{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Public:        p.Public,
		Collaborative: p.Collaborative,
		URI:           p.URI,
		URL:           p.ExternalURLs.Spotify,
		TrackCount:    p.Tracks.Total,
	}
}
