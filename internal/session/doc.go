// Package session owns the Spotify credential lifecycle.
//
// # Token State
//
// [Store] holds the current [Snapshot]. Reads are safe from any goroutine and always observe a fully written
// snapshot. Only [Manager] writes to it, through code exchange, refresh, [Manager.SetTokens], and [Manager.Clear].
//
// # Session Manager
//
// [Manager] drives the authorization-code flow with [oauth2.Config]:
//
//	Unauthenticated --Exchange--> Authenticated --Refresh--> Refreshing --> Authenticated
//
// A failed refresh leaves the session in the state it was in before the attempt; deciding to log out is the
// caller's job. [Manager.EnsureValid] refreshes synchronously when the access token expires within
// [RefreshHorizon], and must be called before every authenticated API request.
//
// Refresh responses that omit refresh_token keep the previous one. A response carrying a new refresh token
// replaces it.
package session
