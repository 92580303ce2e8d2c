// Package repositories implements SQLite persistence for songmix.
//
// Key Implementations:
//   - [TokenRepository] : one credential snapshot per provider, written from the token callback
//   - [TrackRepository] : the last synced copy of the liked-songs library, replaced atomically per sync
//
// Tables are created by the migrations in the shared package; repositories assume they exist.
package repositories
