// Package services implements the Spotify Web API client used by songmix.
//
// # Authenticated Transport
//
// [Client] issues every request. It attaches the current bearer token from the session store, bounds each call
// with a per-request timeout, optionally waits on a client-side [rate.Limiter], and turns any failed response
// into a typed failure with [Classify]. Callers never inspect status codes.
//
// # Error Classification
//
// [Classify] is the only place a transport outcome becomes an error:
//   - 401 : [shared.AuthError] ("invalid or expired token")
//   - 429 : [shared.RateLimitError] with the Retry-After hint in seconds, if sent
//   - other non-2xx : [shared.RemoteError] carrying status, server message, and raw body
//   - no response : [shared.TransportError] wrapping the cause
//
// # Catalog Operations
//
// [SpotifyService] runs liked-song pagination, batched track lookups, playlist creation, and batched track
// insertion. Each request is preceded by [session.Manager.EnsureValid] and wrapped with [retry.Run]. Pages and
// chunks are issued strictly in order; the first failing chunk aborts the rest and its error is returned as is.
// Chunks already applied remotely are not rolled back.
package services
