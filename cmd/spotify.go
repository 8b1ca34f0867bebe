package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/deworm/internal/formatter"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/urfave/cli/v3"
)

// Search searches the catalog for tracks matching the query.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")

	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	if r.gateway == nil {
		return fmt.Errorf("%w: set Spotify credentials in config.toml first", shared.ErrMissingCredentials)
	}

	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	token, err := r.accessToken(ctx, store)
	if err != nil {
		return err
	}

	r.logger.Infof("searching for %q", query)

	tracks, err := r.gateway.SearchTracks(ctx, token, query, int(limit))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if useJSON {
		data, err := formatter.TracksToJSON(tracks)
		if err != nil {
			return err
		}
		r.output.Write(data)
		r.output.Write([]byte("\n"))
		return nil
	}

	if len(tracks) == 0 {
		return r.writePlain("No tracks found for %q\n", query)
	}

	r.writePlain("Found %d tracks:\n\n", len(tracks))
	r.output.Write(formatter.TracksToText(tracks))
	r.writePlain("\nUse 'deworm play <track-id>' to cure the earworm.\n")
	return nil
}

// Play starts playback on the user's active device. By default the named
// track is treated as the earworm and a replacement plays instead; --direct
// plays the named track itself.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("track-id")
	direct := cmd.Bool("direct")

	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}
	if r.gateway == nil {
		return fmt.Errorf("%w: set Spotify credentials in config.toml first", shared.ErrMissingCredentials)
	}

	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	token, err := r.accessToken(ctx, store)
	if err != nil {
		return err
	}

	if direct {
		uri := "spotify:track:" + trackID
		if err := r.gateway.Play(ctx, token, uri, ""); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrPlaybackFailed, err)
		}
		return r.writePlain("✓ Playing %s\n", trackID)
	}

	r.logger.Infof("finding a replacement for %v", trackID)

	cure, err := r.suggester.Suggest(ctx, token, trackID)
	if err != nil {
		return fmt.Errorf("could not pick a replacement: %w", err)
	}

	if err := r.gateway.Play(ctx, token, cure.URI, ""); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlaybackFailed, err)
	}

	return r.writePlain("✓ Replacement playing: %s\n", formatter.TrackLine(*cure))
}

// Pause pauses playback on the active device.
func (r *Runner) Pause(ctx context.Context, cmd *cli.Command) error {
	if r.gateway == nil {
		return fmt.Errorf("%w: set Spotify credentials in config.toml first", shared.ErrMissingCredentials)
	}

	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	token, err := r.accessToken(ctx, store)
	if err != nil {
		return err
	}

	if err := r.gateway.Pause(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlaybackFailed, err)
	}

	return r.writePlain("✓ Playback paused\n")
}
