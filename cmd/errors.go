package main

import (
	"errors"
	"fmt"

	"github.com/desertthunder/songmix/internal/shared"
)

// hint suggests a next step for err, or returns "" when there is nothing useful to add.
func hint(err error) string {
	var rateErr *shared.RateLimitError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, shared.ErrMissingCredentials):
		return fmt.Sprintf("Run `songmix setup config` and fill in your app credentials, or set %s and %s.",
			shared.EnvClientID, shared.EnvClientSecret)
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrNoRefreshToken):
		return "Run `songmix auth login` to connect your Spotify account."
	case errors.Is(err, shared.ErrTimeout):
		return "The authorization callback never arrived. Check that redirect_uri matches your Spotify app settings."
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			return fmt.Sprintf("Spotify is rate limiting requests. Try again in %s.", rateErr.RetryAfter)
		}
		return "Spotify is rate limiting requests. Try again later."
	}

	switch shared.KindOf(err) {
	case shared.KindAuthentication:
		return "Your session was rejected. Run `songmix auth login` to sign in again."
	case shared.KindTransport:
		return "Could not reach Spotify. Check your network connection."
	case shared.KindRemote:
		return "Spotify rejected the request. Run with --verbose for details."
	default:
		return ""
	}
}
