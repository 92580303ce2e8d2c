package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/songmix/internal/models"
	"github.com/desertthunder/songmix/internal/shared"
)

// TrackRepository caches the liked-songs library.
//
// Each sync replaces the whole table in one transaction and stamps every row with the same sync ID.
type TrackRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db, now: time.Now}
}

// ReplaceLiked swaps the cached library for tracks, keeping their order, and returns the new sync ID.
func (r *TrackRepository) ReplaceLiked(tracks []models.SavedTrack) (string, error) {
	syncID := shared.GenerateID()
	cachedAt := r.now().UTC()

	err := withTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM liked_tracks`); err != nil {
			return fmt.Errorf("failed to clear liked tracks: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO liked_tracks (position, spotify_id, uri, title, artists, album, duration, isrc, popularity, explicit, added_at, sync_id, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, saved := range tracks {
			t := saved.Track
			artists, err := json.Marshal(nonNil(t.Artists))
			if err != nil {
				return fmt.Errorf("failed to encode artists: %w", err)
			}

			_, err = stmt.Exec(i, t.ID, t.URI, t.Title, string(artists), t.Album, t.Duration, t.ISRC, t.Popularity, t.Explicit, saved.AddedAt, syncID, cachedAt)
			if err != nil {
				return fmt.Errorf("failed to insert liked track %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return syncID, nil
}

// ListLiked returns the cached library in server order.
func (r *TrackRepository) ListLiked() ([]models.SavedTrack, error) {
	query := `
		SELECT spotify_id, uri, title, artists, album, duration, isrc, popularity, explicit, added_at
		FROM liked_tracks
		ORDER BY position ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.SavedTrack{}
	for rows.Next() {
		var (
			saved   models.SavedTrack
			artists string
		)
		t := &saved.Track
		if err := rows.Scan(&t.ID, &t.URI, &t.Title, &artists, &t.Album, &t.Duration, &t.ISRC, &t.Popularity, &t.Explicit, &saved.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan liked track: %w", err)
		}
		if err := json.Unmarshal([]byte(artists), &t.Artists); err != nil {
			return nil, fmt.Errorf("failed to decode artists for %s: %w", t.ID, err)
		}
		tracks = append(tracks, saved)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// CountLiked returns the number of cached tracks.
func (r *TrackRepository) CountLiked() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM liked_tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count liked tracks: %w", err)
	}
	return n, nil
}

// LastSync reports the sync ID and time of the cached library, or [ErrNotFound] if it is empty.
func (r *TrackRepository) LastSync() (string, time.Time, error) {
	var (
		syncID   string
		cachedAt time.Time
	)
	err := r.db.QueryRow(`SELECT sync_id, cached_at FROM liked_tracks ORDER BY position ASC LIMIT 1`).Scan(&syncID, &cachedAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, fmt.Errorf("liked tracks: %w", ErrNotFound)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read last sync: %w", err)
	}
	return syncID, cachedAt, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
