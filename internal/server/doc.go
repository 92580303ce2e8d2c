// Package server runs the short-lived HTTP listener that receives the OAuth redirect.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers method-qualified
// patterns on an [http.ServeMux], so a wrong method gets a 405 from the mux itself.
//
// [Chain] composes [Middleware] so the first one added runs first. [RequestLogger] and [Recoverer] are the two
// the callback server installs.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, hands the authorization code to an [Exchanger], and publishes
// exactly one [OAuthResult]. Later hits on the callback are rejected so a code cannot be replayed.
//
// # Callback Server
//
// [CallbackServer] binds the redirect URI's host and port, serves the handler, and shuts down once a result
// arrives, the wait times out, or the context is cancelled.
package server
