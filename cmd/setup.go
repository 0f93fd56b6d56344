package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)

	r.writePlain("✓ Configuration written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in the [mqtt], [spotify] and [directories] sections\n")
	r.writePlain("2. Place an authorized Spotify token at spotify.token_file\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Database.Path
	if path == "" {
		return fmt.Errorf("%w: database.path is not set", shared.ErrMissingConfig)
	}

	r.logger.Info("initializing database", "path", path)

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", path)
	return r.writePlain("✓ Database ready at %s\n", path)
}
