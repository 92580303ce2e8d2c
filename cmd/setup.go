package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/songmix/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	r.logger.Info("config file created", "path", path)
	r.writeLine(r.palette.Success("Config written to " + path))
	r.writeLine(r.palette.Help(fmt.Sprintf("Fill in client_id and client_secret, or set %s and %s.", shared.EnvClientID, shared.EnvClientSecret)))
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	if _, err := r.openDatabase(); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writeLine(r.palette.Success("Database ready at " + config.Database.Path))
}
