package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/deworm/internal/server"
	"github.com/desertthunder/deworm/internal/session"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve starts the DeWorm web service.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.ValidateCredentials(); err != nil {
		return err
	}
	if r.auth == nil || r.gateway == nil {
		return fmt.Errorf("%w: spotify client not initialized", shared.ErrMissingCredentials)
	}

	host := r.config.Server.Host
	if cmd.String("host") != "" {
		host = cmd.String("host")
	}
	port := r.config.Server.Port
	if cmd.Int("port") != 0 {
		port = int(cmd.Int("port"))
	}

	production := r.config.Server.Production
	stores := func(w http.ResponseWriter, req *http.Request) session.Store {
		return session.NewCookieStore(w, req, production)
	}

	pages, err := server.NewPageHandler(stores, r.logger)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	router.Handler(server.NewAuthHandler(r.auth, r.gateway, stores, r.logger))
	router.Handler(server.NewAPIHandler(r.auth, r.gateway, r.suggester, stores, r.config.Playback.ReplacementPlaylistID, r.logger))
	router.Handler(pages)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("listening on %v", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		r.logger.Infof("received %v, shutting down", sig)
	case <-ctx.Done():
		r.logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}
