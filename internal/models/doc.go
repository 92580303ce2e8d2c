// Package models defines the provider-neutral records handed to playlist generation and the local cache.
//
//   - [Track] : song metadata with ISRC and popularity for scoring
//   - [SavedTrack] : a [Track] plus the time the user liked it
//   - [Playlist] : playlist metadata returned after creation
//
// Spotify wire types live in the services package and are converted here so downstream code never depends on
// the API's JSON shape.
package models
