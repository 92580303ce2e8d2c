package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songmix/internal/models"
	"github.com/desertthunder/songmix/internal/repositories"
	"github.com/desertthunder/songmix/internal/services"
	"github.com/desertthunder/songmix/internal/session"
	"github.com/desertthunder/songmix/internal/shared"
	"github.com/desertthunder/songmix/internal/ui"
	"github.com/urfave/cli/v3"
)

const provider = "spotify"

// spotifyClient is everything the commands need from [services.SpotifyService].
type spotifyClient interface {
	services.Library
	services.Authenticator
	SetTokenRefreshCallback(fn func(session.Snapshot))
}

// tokenStore persists credential snapshots between runs.
type tokenStore interface {
	Save(provider string, snap session.Snapshot) error
	Load(provider string) (session.Snapshot, error)
	Delete(provider string) error
}

// libraryCache holds the last synced liked-songs library.
type libraryCache interface {
	ReplaceLiked(tracks []models.SavedTrack) (string, error)
	ListLiked() ([]models.SavedTrack, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies not supplied in [RunnerOpts] are built lazily from the config file on first use.
type Runner struct {
	config      *shared.Config
	configPath  string
	spotify     spotifyClient
	tokens      tokenStore
	cache       libraryCache
	db          *sql.DB
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	palette     *ui.Palette
	openBrowser func(string) error

	persistOnce sync.Once
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Spotify     spotifyClient
	Tokens      tokenStore
	Cache       libraryCache
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Palette     *ui.Palette
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Palette == nil {
		opts.Palette = ui.Default
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		spotify:     opts.Spotify,
		tokens:      opts.Tokens,
		cache:       opts.Cache,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		palette:     opts.Palette,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, likedCommand, tracksCommand, playlistCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before applies global flags.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if path := cmd.String("config"); path != "" && r.configPath == "" {
		r.configPath = path
	}
	return ctx, nil
}

// After releases the database, if one was opened.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// Close releases the database, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// loadConfig reads the config file once, falling back to defaults when it does not exist, then applies the
// environment overlay.
func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return nil, err
		}
		r.logger.Debug("loaded config", "path", path)
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	config.ApplyEnv()
	r.config = config
	return config, nil
}

// openDatabase opens and migrates the configured database once.
func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	config, err := r.loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Debug("opened database", "path", config.Database.Path)
	r.db = db
	return db, nil
}

func (r *Runner) tokenStore() (tokenStore, error) {
	if r.tokens == nil {
		db, err := r.openDatabase()
		if err != nil {
			return nil, err
		}
		r.tokens = repositories.NewTokenRepository(db)
	}
	return r.tokens, nil
}

func (r *Runner) libraryCache() (libraryCache, error) {
	if r.cache == nil {
		db, err := r.openDatabase()
		if err != nil {
			return nil, err
		}
		r.cache = repositories.NewTrackRepository(db)
	}
	return r.cache, nil
}

// spotifyService returns the Spotify client, building it from config on first use. Stored tokens are loaded
// into the session and every new snapshot is written back through the token callback.
func (r *Runner) spotifyService() (spotifyClient, error) {
	if r.spotify == nil {
		svc, err := r.newSpotifyService()
		if err != nil {
			return nil, err
		}
		r.spotify = svc
	}

	r.persistOnce.Do(func() {
		r.spotify.SetTokenRefreshCallback(r.persistTokens)
	})
	return r.spotify, nil
}

func (r *Runner) newSpotifyService() (*services.SpotifyService, error) {
	config, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	tokens, err := r.tokenStore()
	if err != nil {
		return nil, err
	}

	accounts := strings.TrimRight(config.Spotify.AccountsURL, "/")
	opts := services.SpotifyOpts{
		HTTPClient: r.httpClient,
		Logger:     r.logger,
		Policy:     config.Spotify.Retry.Policy(),
		RateLimit:  config.Spotify.RateLimit,
		Timeout:    config.Spotify.Timeout(),
		APIURL:     config.Spotify.APIURL,
	}
	if accounts != "" {
		opts.AuthURL = accounts + "/authorize"
		opts.TokenURL = accounts + "/api/token"
	}

	svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map(), opts)
	if err != nil {
		return nil, err
	}

	snap, err := tokens.Load(provider)
	switch {
	case err == nil:
		svc.SetTokens(snap)
		r.logger.Debug("loaded stored session", "expires_at", snap.ExpiresAt)
	case errors.Is(err, repositories.ErrNotFound):
		r.logger.Debug("no stored session")
	default:
		r.logger.Warn("failed to load stored session", "error", err)
	}

	return svc, nil
}

// persistTokens is the token callback. Failures are logged; the in-memory session stays valid.
func (r *Runner) persistTokens(snap session.Snapshot) {
	tokens, err := r.tokenStore()
	if err != nil {
		r.logger.Warn("failed to open token store", "error", err)
		return
	}
	if err := tokens.Save(provider, snap); err != nil {
		r.logger.Warn("failed to persist tokens", "error", err)
		return
	}
	r.logger.Debug("persisted tokens", "expires_at", snap.ExpiresAt)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeLine(s string) error {
	return r.writePlain("%s\n", s)
}
