package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/deworm/internal/player"
	"github.com/desertthunder/deworm/internal/repositories"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for curing earworms.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.gateway == nil || r.suggester == nil {
		return fmt.Errorf("%w: set Spotify credentials in config.toml first", shared.ErrMissingCredentials)
	}

	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := r.accessToken(ctx, store); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/deworm-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	token := func() string {
		t, err := r.accessToken(ctx, store)
		if err != nil {
			r.logger.Warn("token refresh failed", "error", err)
			return ""
		}
		return t
	}

	// Terminal playback goes through the same session controller as the web
	// player, backed by the Web API instead of the browser SDK.
	remote := player.NewRemoteSDK(r.gateway)
	controller := player.NewController(player.Options{
		SDK:           remote,
		Gateway:       remote.Gateway(),
		Token:         token,
		InitialVolume: r.config.Playback.InitialVolume,
		Logger:        fileLogger,
		Devices:       repositories.NewDeviceRepository(db),
		OnReLogin: func() {
			fileLogger.Warn("session rejected upstream, run 'deworm auth login' again")
		},
	})
	defer controller.Close()

	model := ui.NewModel(ctx, r.gateway, r.suggester, controller, token)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
