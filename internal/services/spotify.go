package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songmix/internal/retry"
	"github.com/desertthunder/songmix/internal/session"
	"github.com/desertthunder/songmix/internal/shared"
)

const (
	likedSongsPath    = "/me/tracks?limit=50"
	TrackBatchSize    = 50
	PlaylistBatchSize = 100

	maxPrealloc = 10_000 // cap on the liked-songs capacity hint taken from the server's total
)

// SpotifyOpts contains optional dependencies and endpoint overrides for [NewSpotifyService].
type SpotifyOpts struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	Store      *session.Store // seeded store, e.g. tokens loaded from disk
	Policy     retry.Policy   // zero value means [retry.DefaultPolicy]
	Sleep      retry.SleepFunc
	RateLimit  float64
	Timeout    time.Duration
	APIURL     string
	AuthURL    string
	TokenURL   string
	Scopes     []string
	Now        func() time.Time
}

// SpotifyService implements [Library] and [Authenticator] for the Spotify Web API.
//
// It owns the [session.Manager]; every catalog request goes through [Client] and is retried as a unit.
type SpotifyService struct {
	session *session.Manager
	client  *Client
	retrier *retry.Retrier
	logger  *log.Logger
}

// NewSpotifyService creates a new Spotify service from client_id, client_secret, and redirect_uri credentials.
func NewSpotifyService(credentials map[string]string, opts SpotifyOpts) (*SpotifyService, error) {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}

	manager, err := session.NewManager(session.Config{
		ClientID:     credentials["client_id"],
		ClientSecret: credentials["client_secret"],
		RedirectURI:  credentials["redirect_uri"],
		AuthURL:      opts.AuthURL,
		TokenURL:     opts.TokenURL,
		Scopes:       opts.Scopes,
	}, session.ManagerOpts{
		Store:      opts.Store,
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Timeout,
		Logger:     opts.Logger,
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(opts.Logger, "service", "spotify")
	retrier := retry.New(opts.Policy, logger)
	retrier.Sleep = opts.Sleep

	return &SpotifyService{
		session: manager,
		client: NewClient(ClientOpts{
			BaseURL:    opts.APIURL,
			HTTPClient: opts.HTTPClient,
			Tokens:     manager.Store(),
			Timeout:    opts.Timeout,
			RateLimit:  opts.RateLimit,
			Logger:     opts.Logger,
		}),
		retrier: retrier,
		logger:  logger,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Session exposes the credential lifecycle.
func (s *SpotifyService) Session() *session.Manager { return s.session }

func (s *SpotifyService) IsAuthenticated() bool { return s.session.IsAuthenticated() }

func (s *SpotifyService) Tokens() (session.Snapshot, bool) { return s.session.Tokens() }

func (s *SpotifyService) SetTokens(snap session.Snapshot) { s.session.SetTokens(snap) }

// SetTokenRefreshCallback registers fn to receive every newly obtained token snapshot.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(session.Snapshot)) {
	s.session.SetTokenCallback(fn)
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.session.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code from the callback for tokens.
func (s *SpotifyService) ExchangeCode(ctx context.Context, code string) (session.Snapshot, error) {
	return s.session.Exchange(ctx, code)
}

// RefreshToken forces a refresh and returns the new access token.
func (s *SpotifyService) RefreshToken(ctx context.Context) (string, error) {
	return s.session.Refresh(ctx)
}

// Logout forgets the current tokens.
func (s *SpotifyService) Logout() { s.session.Clear() }

// fetch validates the session and runs one retried call, decoding the response into T.
func fetch[T any](ctx context.Context, s *SpotifyService, method, path string, body any) (T, error) {
	if err := s.session.EnsureValid(ctx); err != nil {
		var zero T
		return zero, err
	}

	return retry.Run(ctx, s.retrier, func(ctx context.Context) (T, error) {
		var out T
		err := s.client.Do(ctx, method, path, body, &out)
		return out, err
	})
}

// UserProfile retrieves the current authenticated user's profile. It is not retried.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	if err := s.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	var user SpotifyUser
	if err := s.client.Do(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// LikedSongs retrieves the whole library, following next cursors until the last page.
//
// Items keep server order. Any page failure aborts the walk and is returned unchanged.
func (s *SpotifyService) LikedSongs(ctx context.Context) ([]SpotifySavedTrack, error) {
	var saved []SpotifySavedTrack
	path := likedSongsPath

	for page := 1; ; page++ {
		resp, err := fetch[SpotifyPaginatedTracks](ctx, s, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		if saved == nil {
			saved = make([]SpotifySavedTrack, 0, min(max(resp.Total, len(resp.Items)), maxPrealloc))
		}
		saved = append(saved, resp.Items...)
		s.logger.Debug("fetched liked songs", "page", page, "items", len(resp.Items), "total", resp.Total)

		if resp.Next == nil || *resp.Next == "" {
			return saved, nil
		}
		if path, err = s.client.CursorPath(*resp.Next); err != nil {
			return nil, err
		}
	}
}

// SeveralTracks retrieves up to [TrackBatchSize] tracks in one request.
func (s *SpotifyService) SeveralTracks(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrMissingArgument)
	}
	if len(trackIDs) > TrackBatchSize {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidArgument, TrackBatchSize)
	}

	q := url.Values{"ids": {strings.Join(trackIDs, ",")}}
	resp, err := fetch[severalTracks](ctx, s, http.MethodGet, "/tracks?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// TrackDetails looks up any number of tracks in batches of [TrackBatchSize], preserving input order.
//
// Unknown IDs come back as zero-value tracks so positions line up with trackIDs.
func (s *SpotifyService) TrackDetails(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error) {
	tracks := make([]SpotifyTrack, 0, len(trackIDs))

	batch := 0
	for chunk := range slices.Chunk(trackIDs, TrackBatchSize) {
		batch++
		got, err := s.SeveralTracks(ctx, chunk)
		if err != nil {
			s.logger.Warn("track lookup aborted", "batch", batch, "resolved", len(tracks), "error", err)
			return nil, err
		}
		tracks = append(tracks, got...)
	}

	return tracks, nil
}

// PlaylistRequest describes a playlist to create. Public and Collaborative default to false.
type PlaylistRequest struct {
	Name          string
	Description   string
	Public        bool
	Collaborative bool
}

// CreatePlaylist creates an empty playlist owned by the current user.
//
// The owner lookup is a single un-retried call; the creation itself is retried.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, req PlaylistRequest) (*SpotifyPlaylist, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	path := "/users/" + url.PathEscape(user.ID) + "/playlists"
	playlist, err := fetch[SpotifyPlaylist](ctx, s, http.MethodPost, path, createPlaylistBody(req))
	if err != nil {
		return nil, err
	}

	s.logger.Info("created playlist", "id", playlist.ID, "name", playlist.Name)
	return &playlist, nil
}

// AddTracksToPlaylist appends uris in batches of [PlaylistBatchSize], strictly in order.
//
// The first failing batch stops the run; earlier batches stay applied.
func (s *SpotifyService) AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}

	path := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	added := 0
	batch := 0

	for chunk := range slices.Chunk(uris, PlaylistBatchSize) {
		batch++
		if err := s.session.EnsureValid(ctx); err != nil {
			return err
		}

		_, err := retry.Run(ctx, s.retrier, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.client.Do(ctx, http.MethodPost, path, addTracksBody{URIs: chunk}, nil)
		})
		if err != nil {
			s.logger.Warn("track insertion aborted", "playlist", playlistID, "batch", batch, "added", added, "error", err)
			return err
		}
		added += len(chunk)
	}

	s.logger.Debug("added tracks", "playlist", playlistID, "count", added, "batches", batch)
	return nil
}
