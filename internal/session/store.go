package session

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenTypeBearer is the only token type the Spotify accounts service issues.
const TokenTypeBearer = "Bearer"

// Snapshot is the credential set for one session.
type Snapshot struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the access token expires at or before now+d.
//
// A zero ExpiresAt counts as already expired.
func (s Snapshot) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.ExpiresAt.After(now.Add(d))
}

// Token converts the snapshot to an [oauth2.Token].
func (s Snapshot) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}
}

// Store holds at most one [Snapshot].
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Read returns a copy of the current snapshot and whether one is present.
func (s *Store) Read() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snap == nil {
		return Snapshot{}, false
	}
	return *s.snap, true
}

// IsAuthenticated is true when a snapshot is present, whether or not it has expired.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Read()
	return ok
}

func (s *Store) write(snap Snapshot) {
	if snap.TokenType == "" {
		snap.TokenType = TokenTypeBearer
	}

	s.mu.Lock()
	s.snap = &snap
	s.mu.Unlock()
}

func (s *Store) clear() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}
