package main

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/desertthunder/songmix/internal/formatter"
	"github.com/desertthunder/songmix/internal/models"
	"github.com/desertthunder/songmix/internal/services"
	"github.com/desertthunder/songmix/internal/shared"
	"github.com/urfave/cli/v3"
)

var spotifyID = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// parseSpotifyRef extracts the ID of a kind ("track", "playlist") resource from a bare ID, a spotify:kind:ID
// URI, or an open.spotify.com link.
func parseSpotifyRef(kind, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	id := ref

	switch {
	case strings.HasPrefix(ref, "spotify:"):
		parts := strings.Split(ref, ":")
		if len(parts) != 3 || parts[1] != kind {
			return "", fmt.Errorf("%w: %q is not a %s URI", shared.ErrInvalidArgument, ref, kind)
		}
		id = parts[2]
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil || u.Host != "open.spotify.com" {
			return "", fmt.Errorf("%w: %q is not an open.spotify.com link", shared.ErrInvalidArgument, ref)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != kind {
			return "", fmt.Errorf("%w: %q is not a %s link", shared.ErrInvalidArgument, ref, kind)
		}
		id = parts[len(parts)-1]
	}

	if !spotifyID.MatchString(id) {
		return "", fmt.Errorf("%w: %q is not a Spotify %s ID", shared.ErrInvalidArgument, ref, kind)
	}
	return id, nil
}

// trackIDs normalizes refs, skipping blanks.
func trackIDs(refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		id, err := parseSpotifyRef("track", ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// render encodes lib and writes it to the --output path, or to stdout when none is given.
func (r *Runner) render(cmd *cli.Command, lib *formatter.Library) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	data, err := formatter.Render(format, lib)
	if err != nil {
		return err
	}

	output := ""
	if cmd.IsSet("output") {
		output = cmd.String("output")
	}
	if output == "" {
		_, err := r.output.Write(data)
		return err
	}

	path, err := formatter.WriteFile(format, output, data)
	if err != nil {
		return err
	}
	r.logger.Info("wrote export", "path", path, "tracks", lib.Total)
	return r.writeLine(r.palette.Success(fmt.Sprintf("Wrote %d tracks to %s", lib.Total, path)))
}

// Liked fetches the complete liked-songs library, optionally caching it, and renders it.
func (r *Runner) Liked(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("offline") && cmd.Bool("cache") {
		return fmt.Errorf("%w: --offline and --cache cannot be combined", shared.ErrInvalidArgument)
	}
	if _, err := formatter.ParseFormat(cmd.String("format")); err != nil {
		return err
	}

	var tracks []models.SavedTrack
	if cmd.Bool("offline") {
		cache, err := r.libraryCache()
		if err != nil {
			return err
		}
		if tracks, err = cache.ListLiked(); err != nil {
			return err
		}
		r.logger.Debug("read cached library", "tracks", len(tracks))
	} else {
		svc, err := r.spotifyService()
		if err != nil {
			return err
		}

		items, err := svc.LikedSongs(ctx)
		if err != nil {
			return err
		}
		tracks = services.ToSavedTracks(items)
		r.logger.Info("fetched liked songs", "tracks", len(tracks))

		if cmd.Bool("cache") {
			cache, err := r.libraryCache()
			if err != nil {
				return err
			}
			syncID, err := cache.ReplaceLiked(tracks)
			if err != nil {
				return err
			}
			r.logger.Info("cached library", "sync_id", syncID, "tracks", len(tracks))
		}
	}

	return r.render(cmd, formatter.NewLibrary("Liked Songs", tracks))
}

// Tracks resolves track references to full metadata, preserving argument order.
func (r *Runner) Tracks(ctx context.Context, cmd *cli.Command) error {
	ids, err := trackIDs(cmd.Args().Slice())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one track", shared.ErrMissingArgument)
	}
	if _, err := formatter.ParseFormat(cmd.String("format")); err != nil {
		return err
	}

	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	found, err := svc.TrackDetails(ctx, ids)
	if err != nil {
		return err
	}

	tracks := make([]models.SavedTrack, len(found))
	for i, t := range found {
		tracks[i] = models.SavedTrack{Track: services.ToTrack(t)}
		if t.ID == "" {
			r.logger.Warn("track not found", "id", ids[i])
		}
	}

	return r.render(cmd, formatter.NewLibrary("Tracks", tracks))
}
