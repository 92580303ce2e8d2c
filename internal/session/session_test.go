package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/songmix/internal/shared"
	th "github.com/desertthunder/songmix/internal/testing"
)

// tokenServer fakes the accounts token endpoint, counting requests and keeping the last form.
type tokenServer struct {
	*httptest.Server
	calls    atomic.Int32
	lastForm url.Values
	status   int
	body     map[string]any
}

func newTokenServer(t *testing.T, status int, body map[string]any) *tokenServer {
	t.Helper()

	ts := &tokenServer{status: status, body: body}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)

		if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("expected form-encoded body, got %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		ts.lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		json.NewEncoder(w).Encode(ts.body)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func newTestManager(t *testing.T, tokenURL string, now func() time.Time) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		RedirectURI:  "http://127.0.0.1:3000/callback",
		TokenURL:     tokenURL,
	}, ManagerOpts{
		Logger: shared.NewLogger(io.Discard),
		Now:    now,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestStore(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		s := NewStore()
		if _, ok := s.Read(); ok {
			t.Error("expected no snapshot")
		}
		if s.IsAuthenticated() {
			t.Error("expected unauthenticated")
		}
	})

	t.Run("write defaults token type", func(t *testing.T) {
		s := NewStore()
		s.write(Snapshot{AccessToken: "A"})

		snap, ok := s.Read()
		if !ok {
			t.Fatal("expected snapshot")
		}
		if snap.TokenType != TokenTypeBearer {
			t.Errorf("expected Bearer, got %s", snap.TokenType)
		}
	})

	t.Run("expired snapshot is still authenticated", func(t *testing.T) {
		s := NewStore()
		s.write(Snapshot{AccessToken: "A", ExpiresAt: time.Now().Add(-time.Hour)})
		if !s.IsAuthenticated() {
			t.Error("expected authenticated regardless of expiry")
		}
	})

	t.Run("read returns a copy", func(t *testing.T) {
		s := NewStore()
		s.write(Snapshot{AccessToken: "A"})

		snap, _ := s.Read()
		snap.AccessToken = "mutated"

		again, _ := s.Read()
		if again.AccessToken != "A" {
			t.Errorf("store was mutated through a read copy: %s", again.AccessToken)
		}
	})
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tc := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "far future", expiresAt: now.Add(time.Hour), want: false},
		{name: "just outside horizon", expiresAt: now.Add(RefreshHorizon + time.Second), want: false},
		{name: "exactly at horizon", expiresAt: now.Add(RefreshHorizon), want: true},
		{name: "inside horizon", expiresAt: now.Add(time.Minute), want: true},
		{name: "already expired", expiresAt: now.Add(-time.Minute), want: true},
		{name: "zero expiry", expiresAt: time.Time{}, want: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{AccessToken: "A", ExpiresAt: tt.expiresAt}
			if got := snap.ExpiresWithin(now, RefreshHorizon); got != tt.want {
				t.Errorf("ExpiresWithin() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("Token", func(t *testing.T) {
		snap := Snapshot{AccessToken: "A", RefreshToken: "R", TokenType: "Bearer", ExpiresAt: now}
		tok := snap.Token()
		if tok.AccessToken != "A" || tok.RefreshToken != "R" || !tok.Expiry.Equal(now) {
			t.Errorf("unexpected token %+v", tok)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		tc := []struct {
			name string
			cfg  Config
		}{
			{name: "client id", cfg: Config{ClientSecret: "s", RedirectURI: "r"}},
			{name: "client secret", cfg: Config{ClientID: "i", RedirectURI: "r"}},
			{name: "redirect uri", cfg: Config{ClientID: "i", ClientSecret: "s"}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewManager(tt.cfg, ManagerOpts{})
				if !errors.Is(err, shared.ErrMissingCredentials) {
					t.Errorf("expected ErrMissingCredentials, got %v", err)
				}
			})
		}
	})

	t.Run("default timeout", func(t *testing.T) {
		m := newTestManager(t, "http://unused/api/token", nil)
		if m.timeout != defaultTimeout {
			t.Errorf("expected %s, got %s", defaultTimeout, m.timeout)
		}
	})

	t.Run("starts unauthenticated", func(t *testing.T) {
		m := newTestManager(t, "http://unused/api/token", nil)
		if m.State() != Unauthenticated {
			t.Errorf("expected unauthenticated, got %v", m.State())
		}
		if m.IsAuthenticated() {
			t.Error("expected IsAuthenticated false")
		}
	})

	t.Run("starts authenticated with a seeded store", func(t *testing.T) {
		store := NewStore()
		store.write(Snapshot{AccessToken: "A"})

		m, err := NewManager(Config{ClientID: "i", ClientSecret: "s", RedirectURI: "r"}, ManagerOpts{
			Store:  store,
			Logger: shared.NewLogger(io.Discard),
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m.State() != Authenticated {
			t.Errorf("expected authenticated, got %v", m.State())
		}
	})
}

func TestAuthCodeURL(t *testing.T) {
	m := newTestManager(t, "http://unused/api/token", nil)

	t.Run("with state", func(t *testing.T) {
		raw := m.AuthCodeURL("xyz")
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid url %q: %v", raw, err)
		}

		if u.Host != "accounts.spotify.com" || u.Path != "/authorize" {
			t.Errorf("unexpected endpoint %s", raw)
		}

		q := u.Query()
		want := map[string]string{
			"client_id":     "test_client_id",
			"response_type": "code",
			"redirect_uri":  "http://127.0.0.1:3000/callback",
			"scope":         strings.Join(DefaultScopes, " "),
			"state":         "xyz",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("without state", func(t *testing.T) {
		u, _ := url.Parse(m.AuthCodeURL(""))
		if u.Query().Has("state") {
			t.Error("expected no state parameter")
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		if m.AuthCodeURL("s") != m.AuthCodeURL("s") {
			t.Error("expected identical urls")
		}
		if m.State() != Unauthenticated {
			t.Error("building a url must not change state")
		}
	})
}

func TestExchange(t *testing.T) {
	t.Run("stores snapshot", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusOK, map[string]any{
			"access_token":  "A",
			"refresh_token": "R",
			"expires_in":    3600,
			"token_type":    "Bearer",
			"scope":         "x",
		})
		m := newTestManager(t, ts.URL+"/api/token", nil)

		var reported []Snapshot
		m.SetTokenCallback(func(s Snapshot) { reported = append(reported, s) })

		snap, err := m.Exchange(context.Background(), "AUTH_CODE")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := time.Now().Add(3600 * time.Second)
		if diff := snap.ExpiresAt.Sub(want); diff > time.Second || diff < -time.Second {
			t.Errorf("expected expiry near %v, got %v", want, snap.ExpiresAt)
		}
		if snap.AccessToken != "A" || snap.RefreshToken != "R" || snap.Scope != "x" || snap.TokenType != "Bearer" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if !m.IsAuthenticated() {
			t.Error("expected IsAuthenticated after exchange")
		}
		if m.State() != Authenticated {
			t.Errorf("expected authenticated, got %v", m.State())
		}

		stored, _ := m.Tokens()
		if stored != snap {
			t.Errorf("stored snapshot %+v differs from returned %+v", stored, snap)
		}

		form := ts.lastForm
		for k, v := range map[string]string{
			"grant_type":    "authorization_code",
			"code":          "AUTH_CODE",
			"redirect_uri":  "http://127.0.0.1:3000/callback",
			"client_id":     "test_client_id",
			"client_secret": "test_client_secret",
		} {
			if got := form.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}

		if len(reported) != 1 || reported[0].AccessToken != "A" {
			t.Errorf("expected callback with new snapshot, got %+v", reported)
		}
	})

	t.Run("server rejection", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Invalid authorization code",
		})
		m := newTestManager(t, ts.URL+"/api/token", nil)

		_, err := m.Exchange(context.Background(), "BAD")

		var authErr *shared.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if authErr.Reason != "Invalid authorization code" {
			t.Errorf("expected server description, got %q", authErr.Reason)
		}
		if m.IsAuthenticated() {
			t.Error("failed exchange must not store tokens")
		}
		if m.State() != Unauthenticated {
			t.Errorf("expected unauthenticated, got %v", m.State())
		}
	})

	t.Run("empty code", func(t *testing.T) {
		m := newTestManager(t, "http://unused/api/token", nil)
		if _, err := m.Exchange(context.Background(), ""); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
	})

	t.Run("unreachable token endpoint", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		addr := ts.URL
		ts.Close()

		m := newTestManager(t, addr+"/api/token", nil)
		_, err := m.Exchange(context.Background(), "AUTH_CODE")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := th.FixedClock(now)

	t.Run("slow token endpoint is cut off", func(t *testing.T) {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer slow.Close()

		m, err := NewManager(Config{
			ClientID:     "test_client_id",
			ClientSecret: "test_client_secret",
			RedirectURI:  "http://127.0.0.1:3000/callback",
			TokenURL:     slow.URL + "/api/token",
		}, ManagerOpts{
			HTTPClient: http.DefaultClient,
			Timeout:    50 * time.Millisecond,
			Logger:     shared.NewLogger(io.Discard),
			Now:        clock,
		})
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		m.SetTokens(Snapshot{AccessToken: "A", RefreshToken: "R", ExpiresAt: now})

		start := time.Now()
		_, err = m.Refresh(context.Background())
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("expected the call to time out, took %s", elapsed)
		}
		if snap, _ := m.Tokens(); snap.AccessToken != "A" {
			t.Errorf("expected the stored token to survive, got %q", snap.AccessToken)
		}
	})

	t.Run("no refresh token makes no request", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "B", "expires_in": 3600})
		m := newTestManager(t, ts.URL+"/api/token", clock)

		_, err := m.Refresh(context.Background())
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}

		m.SetTokens(Snapshot{AccessToken: "A"})
		if _, err := m.Refresh(context.Background()); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken with empty refresh token, got %v", err)
		}

		if n := ts.calls.Load(); n != 0 {
			t.Errorf("expected no token requests, got %d", n)
		}
	})

	t.Run("preserves refresh token when omitted", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusOK, map[string]any{
			"access_token": "B",
			"token_type":   "Bearer",
			"expires_in":   1800,
		})
		m := newTestManager(t, ts.URL+"/api/token", clock)
		m.SetTokens(Snapshot{AccessToken: "A", RefreshToken: "R", Scope: "x", ExpiresAt: now.Add(time.Minute)})

		var reported int
		m.SetTokenCallback(func(Snapshot) { reported++ })

		access, err := m.Refresh(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if access != "B" {
			t.Errorf("expected new access token B, got %s", access)
		}

		snap, _ := m.Tokens()
		if snap.RefreshToken != "R" {
			t.Errorf("expected refresh token preserved, got %q", snap.RefreshToken)
		}
		if snap.Scope != "x" {
			t.Errorf("expected scope preserved, got %q", snap.Scope)
		}
		if !snap.ExpiresAt.Equal(now.Add(1800 * time.Second)) {
			t.Errorf("expected expiry now+1800s, got %v", snap.ExpiresAt)
		}
		if m.State() != Authenticated {
			t.Errorf("expected authenticated, got %v", m.State())
		}
		if reported != 1 {
			t.Errorf("expected callback once, got %d", reported)
		}

		form := ts.lastForm
		for k, v := range map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": "R",
			"client_id":     "test_client_id",
			"client_secret": "test_client_secret",
		} {
			if got := form.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("rotates refresh token when issued", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusOK, map[string]any{
			"access_token":  "B",
			"refresh_token": "R2",
			"expires_in":    3600,
		})
		m := newTestManager(t, ts.URL+"/api/token", clock)
		m.SetTokens(Snapshot{AccessToken: "A", RefreshToken: "R"})

		if _, err := m.Refresh(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		snap, _ := m.Tokens()
		if snap.RefreshToken != "R2" {
			t.Errorf("expected rotated refresh token, got %q", snap.RefreshToken)
		}
	})

	t.Run("failure keeps prior state", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Refresh token revoked",
		})
		m := newTestManager(t, ts.URL+"/api/token", clock)
		original := Snapshot{AccessToken: "A", RefreshToken: "R", TokenType: "Bearer", ExpiresAt: now.Add(time.Minute)}
		m.SetTokens(original)

		_, err := m.Refresh(context.Background())

		var authErr *shared.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if authErr.Reason != "Refresh token revoked" {
			t.Errorf("expected server description, got %q", authErr.Reason)
		}
		if m.State() != Authenticated {
			t.Errorf("expected state to stay authenticated, got %v", m.State())
		}
		if snap, _ := m.Tokens(); snap != original {
			t.Errorf("expected snapshot unchanged, got %+v", snap)
		}
	})
}

func TestEnsureValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := th.FixedClock(now)

	t.Run("not authenticated", func(t *testing.T) {
		m := newTestManager(t, "http://unused/api/token", clock)

		err := m.EnsureValid(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
	})

	tc := []struct {
		name      string
		expiresAt time.Time
		wantCalls int32
	}{
		{name: "valid token", expiresAt: now.Add(RefreshHorizon + time.Second), wantCalls: 0},
		{name: "an hour left", expiresAt: now.Add(time.Hour), wantCalls: 0},
		{name: "at the horizon", expiresAt: now.Add(RefreshHorizon), wantCalls: 1},
		{name: "inside the horizon", expiresAt: now.Add(time.Minute), wantCalls: 1},
		{name: "expired", expiresAt: now.Add(-time.Hour), wantCalls: 1},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "B", "expires_in": 3600})
			m := newTestManager(t, ts.URL+"/api/token", clock)
			m.SetTokens(Snapshot{AccessToken: "A", RefreshToken: "R", ExpiresAt: tt.expiresAt})

			if err := m.EnsureValid(context.Background()); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if n := ts.calls.Load(); n != tt.wantCalls {
				t.Errorf("expected %d refresh calls, got %d", tt.wantCalls, n)
			}

			// a second check after a refresh sees a fresh token
			if err := m.EnsureValid(context.Background()); err != nil {
				t.Fatalf("expected no error on second check, got %v", err)
			}
			if n := ts.calls.Load(); n != tt.wantCalls {
				t.Errorf("expected no additional refresh, got %d calls", n)
			}
		})
	}

	t.Run("refresh failure propagates", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		m := newTestManager(t, ts.URL+"/api/token", clock)
		m.SetTokens(Snapshot{AccessToken: "A", RefreshToken: "R", ExpiresAt: now})

		if err := m.EnsureValid(context.Background()); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected auth failure, got %v", err)
		}
	})
}

func TestSetTokensAndClear(t *testing.T) {
	m := newTestManager(t, "http://unused/api/token", nil)

	var reported int
	m.SetTokenCallback(func(Snapshot) { reported++ })

	m.SetTokens(Snapshot{AccessToken: "A", RefreshToken: "R"})
	if m.State() != Authenticated || !m.IsAuthenticated() {
		t.Error("expected authenticated after SetTokens")
	}
	if reported != 0 {
		t.Error("SetTokens must not invoke the token callback")
	}

	m.SetTokens(Snapshot{})
	if m.IsAuthenticated() {
		t.Error("empty snapshot should clear the session")
	}

	m.SetTokens(Snapshot{AccessToken: "A"})
	m.Clear()
	if m.State() != Unauthenticated || m.IsAuthenticated() {
		t.Error("expected unauthenticated after Clear")
	}
}
