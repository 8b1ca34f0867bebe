package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/repositories"
	"github.com/desertthunder/deworm/internal/session"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
	"github.com/desertthunder/deworm/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config    *shared.Config
	auth      spotify.Authenticator
	gateway   spotify.Gateway
	suggester tasks.Suggester
	logger    *log.Logger
	output    io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *shared.Config
	Auth      spotify.Authenticator
	Gateway   spotify.Gateway
	Suggester tasks.Suggester
	Logger    *log.Logger
	Output    io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Suggester == nil && opts.Gateway != nil {
		opts.Suggester = tasks.NewPlaylistSuggester(opts.Gateway, opts.Config.Playback.ReplacementPlaylistID)
	}

	return &Runner{
		config:    opts.Config,
		auth:      opts.Auth,
		gateway:   opts.Gateway,
		suggester: opts.Suggester,
		logger:    opts.Logger,
		output:    opts.Output,
	}
}

// SetLogger swaps the runner's logger, used when the TUI redirects logs to a file.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, searchCommand, playCommand, pauseCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openSession opens the configured database and returns the CLI session store.
// The caller closes the database.
func (r *Runner) openSession() (*repositories.SessionRepository, *sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return repositories.NewSessionRepository(db), db, nil
}

// accessToken returns a currently valid access token from the store,
// refreshing silently when the stored one is expired.
func (r *Runner) accessToken(ctx context.Context, store session.Store) (string, error) {
	sess := store.Get()

	if sess.AccessToken == "" && sess.RefreshToken == "" {
		return "", fmt.Errorf("%w: run 'deworm auth login' first", shared.ErrNotAuthenticated)
	}

	if !store.IsExpired() {
		return sess.AccessToken, nil
	}

	if sess.RefreshToken == "" {
		return "", fmt.Errorf("%w: run 'deworm auth login' again", shared.ErrTokenExpired)
	}

	r.logger.Debug("access token expired, refreshing")
	tokens, err := r.auth.RefreshToken(ctx, sess.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: run 'deworm auth login' again", shared.ErrRefreshFailed)
	}

	next := models.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}
	if err := store.Put(next); err != nil {
		return "", fmt.Errorf("failed to persist refreshed session: %w", err)
	}

	return tokens.AccessToken, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
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

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
