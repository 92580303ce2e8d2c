package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/songmix/internal/session"
)

// TokenRepository persists credential snapshots keyed by provider (e.g. "spotify").
type TokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepository creates a new TokenRepository with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db, now: time.Now}
}

// Save upserts the snapshot for provider.
func (r *TokenRepository) Save(provider string, snap session.Snapshot) error {
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if snap.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}

	var expiresAt sql.NullTime
	if !snap.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: snap.ExpiresAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO tokens (provider, access_token, refresh_token, token_type, scope, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		provider,
		snap.AccessToken,
		snap.RefreshToken,
		snap.TokenType,
		snap.Scope,
		expiresAt,
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for provider, or [ErrNotFound].
func (r *TokenRepository) Load(provider string) (session.Snapshot, error) {
	query := `
		SELECT access_token, refresh_token, token_type, scope, expires_at
		FROM tokens
		WHERE provider = ?
	`

	var (
		snap      session.Snapshot
		expiresAt sql.NullTime
	)
	err := r.db.QueryRow(query, provider).Scan(&snap.AccessToken, &snap.RefreshToken, &snap.TokenType, &snap.Scope, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, fmt.Errorf("token for %s: %w", provider, ErrNotFound)
	}
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to scan token: %w", err)
	}

	if expiresAt.Valid {
		snap.ExpiresAt = expiresAt.Time
	}
	return snap, nil
}

// Delete removes the snapshot for provider. Deleting a missing row is not an error.
func (r *TokenRepository) Delete(provider string) error {
	if _, err := r.db.Exec(`DELETE FROM tokens WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
