package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/songmix/internal/models"
	"github.com/desertthunder/songmix/internal/services"
	"github.com/desertthunder/songmix/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistCreate creates an empty playlist for the current user.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if name == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	created, err := svc.CreatePlaylist(ctx, services.PlaylistRequest{
		Name:          name,
		Description:   cmd.String("description"),
		Public:        cmd.Bool("public"),
		Collaborative: cmd.Bool("collaborative"),
	})
	if err != nil {
		return err
	}

	playlist := services.ToPlaylist(*created)
	if cmd.Bool("json") {
		return r.writeJSON(playlist, true)
	}

	r.writeLine(r.palette.Success("Created playlist " + playlist.Name))
	return r.writePlain("%s", r.palette.Fields(
		"ID", playlist.ID,
		"Visibility", shared.VisibilityString(playlist.Public),
		"URL", playlist.URL,
	))
}

// readRefs reads one reference per line, ignoring blanks and # comments.
func readRefs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track file: %w", err)
	}
	defer f.Close()

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}
	return refs, nil
}

// PlaylistAdd appends tracks from arguments, a file, and the cached library, in that order.
func (r *Runner) PlaylistAdd(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.First() == "" {
		return fmt.Errorf("%w: playlist", shared.ErrMissingArgument)
	}
	playlistID, err := parseSpotifyRef("playlist", args.First())
	if err != nil {
		return err
	}

	refs := args.Tail()
	if path := cmd.String("file"); path != "" {
		lines, err := readRefs(path)
		if err != nil {
			return err
		}
		refs = append(refs, lines...)
	}

	ids, err := trackIDs(refs)
	if err != nil {
		return err
	}
	uris := make([]string, 0, len(ids))
	for _, id := range ids {
		uris = append(uris, "spotify:track:"+id)
	}

	if cmd.Bool("liked") {
		cache, err := r.libraryCache()
		if err != nil {
			return err
		}
		liked, err := cache.ListLiked()
		if err != nil {
			return err
		}
		uris = append(uris, models.URIs(liked)...)
	}

	if limit := cmd.Int("limit"); limit > 0 && len(uris) > limit {
		uris = uris[:limit]
	}
	if len(uris) == 0 {
		return fmt.Errorf("%w: no tracks to add", shared.ErrMissingArgument)
	}

	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	if err := svc.AddTracksToPlaylist(ctx, playlistID, uris); err != nil {
		return err
	}

	r.logger.Info("added tracks", "playlist", playlistID, "tracks", len(uris))
	return r.writeLine(r.palette.Success(fmt.Sprintf("Added %d tracks to %s", len(uris), playlistID)))
}
