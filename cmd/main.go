package main

import (
	"context"
	"os"

	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	opts := RunnerOpts{Config: config, Logger: logger}
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if client, err := spotify.NewClient(config.Credentials.Spotify); err == nil {
			opts.Auth = client
			opts.Gateway = client
		}
	}

	runner := NewRunner(opts)

	app := &cli.Command{
		Name:     "deworm",
		Usage:    "Cure earworms by replacing them with catchier songs",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
