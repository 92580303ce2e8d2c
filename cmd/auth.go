package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/songmix/internal/server"
	"github.com/desertthunder/songmix/internal/shared"
	"github.com/urfave/cli/v3"
)

// callbackAddr derives the listen address and callback path from the registered redirect URI. The server
// section fills in whatever the URI leaves out.
func callbackAddr(redirectURI string, cfg shared.ServerConfig) (string, string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}

	host, port := u.Hostname(), u.Port()
	if host == "" {
		host = cfg.Host
	}
	if port == "" {
		if cfg.Port <= 0 {
			return "", "", fmt.Errorf("%w: redirect_uri %q has no port", shared.ErrInvalidConfig, redirectURI)
		}
		port = strconv.Itoa(cfg.Port)
	}

	path := u.Path
	if path == "" {
		path = "/callback"
	}
	return net.JoinHostPort(host, port), path, nil
}

// AuthLogin runs the authorization code flow against a local callback listener.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	addr, path, err := callbackAddr(config.Credentials.Spotify.RedirectURI, config.Server)
	if err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}

	handler := server.NewOAuthHandler(svc, state, path)
	srv := server.NewCallbackServer(addr, handler, r.logger)
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	authURL := svc.GetAuthURL(state)
	if cmd.Bool("no-browser") {
		r.writeLine("Open this URL to authorize songmix:")
		r.writeLine(authURL)
	} else if err := r.openBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
		r.writeLine("Open this URL to authorize songmix:")
		r.writeLine(authURL)
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r.logger.Info("waiting for authorization", "addr", srv.Addr().String(), "path", path)

	result, err := srv.Wait(ctx, ln, timeout)
	if err != nil {
		return err
	}

	r.logger.Info("authentication successful", "expires_at", result.Tokens.ExpiresAt)
	return r.writeLine(r.palette.Success("Authenticated with Spotify"))
}

// AuthURL prints the authorization URL without listening for the callback.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}
	return r.writeLine(svc.GetAuthURL(state))
}

type authStatus struct {
	Authenticated   bool      `json:"authenticated"`
	Expired         bool      `json:"expired"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
	Scope           string    `json:"scope,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

// AuthStatus reports the stored session without contacting Spotify. Secrets are never printed.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	var status authStatus
	if snap, ok := svc.Tokens(); ok {
		status = authStatus{
			Authenticated:   true,
			Expired:         snap.ExpiresWithin(time.Now(), 0),
			ExpiresAt:       snap.ExpiresAt,
			Scope:           snap.Scope,
			HasRefreshToken: snap.RefreshToken != "",
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	if !status.Authenticated {
		r.writeLine(r.palette.Failure("Not authenticated"))
		return r.writeLine(r.palette.Help("Run `songmix auth login` to connect your Spotify account."))
	}

	r.writeLine(r.palette.Title("Spotify session"))
	expires := status.ExpiresAt.Local().Format(time.RFC1123)
	if status.Expired {
		expires += " " + r.palette.Warn("(expired)")
	} else {
		expires += fmt.Sprintf(" (in %s)", time.Until(status.ExpiresAt).Round(time.Second))
	}
	return r.writePlain("%s", r.palette.Fields(
		"Expires", expires,
		"Scope", status.Scope,
		"Refreshable", status.HasRefreshToken,
	))
}

// AuthRefresh forces a token refresh. The new snapshot is persisted by the token callback.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	if _, err := svc.RefreshToken(ctx); err != nil {
		return err
	}

	snap, _ := svc.Tokens()
	r.logger.Info("token refreshed", "expires_at", snap.ExpiresAt)
	return r.writeLine(r.palette.Success("Token refreshed, valid until " + snap.ExpiresAt.Local().Format(time.RFC1123)))
}

// AuthLogout clears the in-memory session and deletes the stored tokens.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}
	svc.Logout()

	tokens, err := r.tokenStore()
	if err != nil {
		return err
	}
	if err := tokens.Delete(provider); err != nil {
		return fmt.Errorf("failed to delete stored tokens: %w", err)
	}

	r.logger.Info("logged out")
	return r.writeLine(r.palette.Success("Logged out"))
}
