package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songmix/internal/shared"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	// RefreshHorizon is how close to expiry EnsureValid starts refreshing.
	RefreshHorizon = 5 * time.Minute

	defaultTimeout = 10 * time.Second
)

// DefaultScopes covers reading the library and writing playlists.
var DefaultScopes = []string{
	"user-read-private",
	"user-library-read",
	"playlist-read-private",
	"playlist-modify-public",
	"playlist-modify-private",
}

// State is a position in the session lifecycle.
type State int32

const (
	Unauthenticated State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// Config is the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string   // defaults to [DefaultAuthURL]
	TokenURL     string   // defaults to [DefaultTokenURL]
	Scopes       []string // defaults to [DefaultScopes]
}

// ManagerOpts contains optional dependencies for [NewManager].
type ManagerOpts struct {
	Store      *Store
	HTTPClient *http.Client  // used for token endpoint calls
	Timeout    time.Duration // per token endpoint call, 10s by default
	Logger     *log.Logger
	Now        func() time.Time
}

// Manager runs the exchange and refresh protocol and is the only writer of its [Store].
type Manager struct {
	oauth   *oauth2.Config
	store   *Store
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu    sync.Mutex // serializes exchange, refresh, and explicit sets
	state atomic.Int32

	cbMu     sync.RWMutex
	onTokens func(Snapshot)
}

// NewManager validates cfg and returns a Manager. A snapshot already in opts.Store starts it Authenticated.
func NewManager(cfg Config, opts ManagerOpts) (*Manager, error) {
	switch {
	case cfg.ClientID == "":
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	case cfg.ClientSecret == "":
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	case cfg.RedirectURI == "":
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingCredentials)
	}

	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:   opts.Store,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
		logger:  shared.WithLogger(opts.Logger, "component", "session"),
		now:     opts.Now,
	}

	if m.store.IsAuthenticated() {
		m.setState(Authenticated)
	}

	return m, nil
}

// Store returns the token state read by the transport.
func (m *Manager) Store() *Store { return m.store }

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// IsAuthenticated is true when a snapshot is present, regardless of expiry.
func (m *Manager) IsAuthenticated() bool { return m.store.IsAuthenticated() }

// SetTokenCallback registers fn to receive every snapshot produced by an exchange or refresh.
//
// Explicit [Manager.SetTokens] calls are not reported. Pass nil to remove the callback.
func (m *Manager) SetTokenCallback(fn func(Snapshot)) {
	m.cbMu.Lock()
	m.onTokens = fn
	m.cbMu.Unlock()
}

func (m *Manager) notify(snap Snapshot) {
	m.cbMu.RLock()
	fn := m.onTokens
	m.cbMu.RUnlock()

	if fn != nil {
		fn(snap)
	}
}

// AuthCodeURL builds the browser authorization URL. An empty state omits the parameter.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a snapshot and stores it.
func (m *Manager) Exchange(ctx context.Context, code string) (Snapshot, error) {
	if code == "" {
		return Snapshot{}, &shared.AuthError{Reason: "missing authorization code", Err: shared.ErrMissingArgument}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("exchanging authorization code")

	ctx, cancel := m.withClient(ctx)
	defer cancel()

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		m.logger.Warn("authorization code exchange failed", "error", err)
		return Snapshot{}, authFailure(err)
	}

	snap := m.snapshotFrom(tok, Snapshot{})
	m.store.write(snap)
	m.setState(Authenticated)

	m.logger.Info("session authenticated", "scope", snap.Scope, "expires_at", snap.ExpiresAt.Format(time.RFC3339))
	m.notify(snap)

	return snap, nil
}

// Refresh obtains a new access token with the stored refresh token and returns it.
//
// Without a refresh token it fails immediately with an [shared.AuthError] and makes no request.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	current, ok := m.store.Read()
	if !ok || current.RefreshToken == "" {
		return "", &shared.AuthError{Reason: shared.ErrNoRefreshToken.Error(), Err: shared.ErrNoRefreshToken}
	}

	prev := m.State()
	m.setState(Refreshing)

	m.logger.Debug("refreshing access token", "expires_at", current.ExpiresAt.Format(time.RFC3339))

	ctx, cancel := m.withClient(ctx)
	defer cancel()

	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		m.setState(prev)
		m.logger.Warn("token refresh failed", "error", err)
		return "", authFailure(err)
	}

	next := m.snapshotFrom(tok, current)
	m.store.write(next)
	m.setState(Authenticated)

	m.logger.Info("access token refreshed", "expires_at", next.ExpiresAt.Format(time.RFC3339))
	m.notify(next)

	return next.AccessToken, nil
}

// EnsureValid fails when no snapshot exists and refreshes when the token expires within [RefreshHorizon].
func (m *Manager) EnsureValid(ctx context.Context) error {
	snap, ok := m.store.Read()
	if !ok {
		return &shared.AuthError{Reason: shared.ErrNotAuthenticated.Error(), Err: shared.ErrNotAuthenticated}
	}
	if !snap.ExpiresWithin(m.now(), RefreshHorizon) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// another caller may have refreshed while we waited for the lock
	if snap, ok = m.store.Read(); ok && !snap.ExpiresWithin(m.now(), RefreshHorizon) {
		return nil
	}

	_, err := m.refreshLocked(ctx)
	return err
}

// Tokens returns the current snapshot for out-of-process persistence.
func (m *Manager) Tokens() (Snapshot, bool) {
	return m.store.Read()
}

// SetTokens replaces the snapshot, typically with one restored from storage.
//
// A snapshot without an access token clears the session.
func (m *Manager) SetTokens(snap Snapshot) {
	if snap.AccessToken == "" {
		m.Clear()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.write(snap)
	m.setState(Authenticated)
}

// Clear drops the snapshot and returns to Unauthenticated.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.clear()
	m.setState(Unauthenticated)
}

// withClient bounds a token endpoint call by the per-call timeout and routes it through the configured client.
func (m *Manager) withClient(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	return context.WithValue(ctx, oauth2.HTTPClient, m.client), cancel
}

// snapshotFrom builds a snapshot from a token response, keeping fields of prev the server left out.
func (m *Manager) snapshotFrom(tok *oauth2.Token, prev Snapshot) Snapshot {
	snap := Snapshot{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Scope:        prev.Scope,
	}

	if snap.RefreshToken == "" {
		snap.RefreshToken = prev.RefreshToken
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		snap.Scope = scope
	}

	switch {
	case tok.ExpiresIn > 0:
		snap.ExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		snap.ExpiresAt = tok.Expiry
	}

	return snap
}

// authFailure converts a token endpoint error, preferring the server's error_description.
func authFailure(err error) *shared.AuthError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		reason := re.ErrorDescription
		if reason == "" {
			reason = re.ErrorCode
		}
		if reason == "" && re.Response != nil {
			reason = re.Response.Status
		}
		return &shared.AuthError{Reason: reason, Err: err}
	}

	return &shared.AuthError{Reason: err.Error(), Err: err}
}
