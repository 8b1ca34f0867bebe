package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/server"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin performs the OAuth2 authorization flow for the CLI.
//
// Starts a local HTTP server, opens the browser for user authorization, and
// exchanges the auth code for tokens stored in the local database.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.auth == nil {
		return fmt.Errorf("%w: set Spotify credentials in config.toml first", shared.ErrMissingCredentials)
	}

	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	state := shared.GenerateState(16)
	if err := store.SaveState(state); err != nil {
		return err
	}

	authURL := r.auth.AuthCodeURL(state)
	handler := server.NewLoopbackHandler(r.auth, store)
	router := server.NewBasicRouter()
	router.Handler(handler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.LoopbackResult

	select {
	case result = <-handler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}

	tokens := result.Tokens
	sess := models.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}

	if profile, err := r.gateway.Me(ctx, tokens.AccessToken); err == nil {
		sess.Profile = profile
	} else {
		r.logger.Warn("profile fetch failed", "error", err)
	}

	if err := store.Put(sess); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	if sess.Profile != nil {
		r.writePlain("Logged in as %s\n", sess.Profile.DisplayName)
	}
	r.writePlain("You can now use: deworm search \"stuck song\"\n")

	return nil
}

// AuthStatus shows the stored session's state.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	sess := store.Get()
	if sess.AccessToken == "" && sess.RefreshToken == "" {
		r.writePlain("✗ Not authenticated\nRun 'deworm auth login' to sign in.\n")
		return nil
	}

	r.writePlain("✓ Authenticated\n")
	if sess.Profile != nil {
		r.writePlain("User: %s\n", sess.Profile.DisplayName)
		if sess.Profile.Email != "" {
			r.writePlain("Email: %s\n", sess.Profile.Email)
		}
	}
	if store.IsExpired() {
		r.writePlain("Access token: expired (will refresh on next use)\n")
	} else {
		r.writePlain("Access token: valid until %s\n", sess.ExpiresAt.Format(time.RFC1123))
	}
	if sess.RefreshToken != "" {
		r.writePlain("Refresh token: present\n")
	}

	return nil
}

// AuthLogout clears the stored session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	store, db, err := r.openSession()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Clear(); err != nil {
		return err
	}

	return r.writePlain("✓ Logged out\n")
}
