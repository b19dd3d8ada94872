package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bundlex/internal/bundle"
	"github.com/desertthunder/bundlex/internal/shared"
)

// SetupDatabase initializes the history database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.config.Database.Path == "" {
		return fmt.Errorf("%w: database.path is not set", shared.ErrMissingConfig)
	}
	path := r.abs(r.config.Database.Path)
	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		r.writePlain("✓ Rolled back latest migration\n")
		return nil
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", path)
	r.writePlain("✓ Database ready at %s\n", path)
	return nil
}

// ConfigInit writes the example configuration to --config.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Wrote %s\n", r.configPath)
	return nil
}

// Tasks prints every configured task with the options it would bundle with.
func (r *Runner) Tasks(ctx context.Context, cmd *cli.Command) error {
	if len(r.config.Tasks) == 0 {
		return shared.ErrNoTasks
	}

	for i, tc := range r.config.Tasks {
		task, err := r.newTask(tc, r.settings(cmd))
		if err != nil {
			return fmt.Errorf("%s: %w", tc.Name, err)
		}
		if i > 0 {
			r.writePlain("\n")
		}

		paths := task.Paths()
		r.writePlain("%s\n", styles.header.Render(task.Name()))
		r.writePlain("  src:    %s\n", paths.SrcPath)
		r.writePlain("  output: %s\n", paths.OutputPath())

		resolved := task.ResolveConfig()
		for _, key := range slices.Sorted(maps.Keys(resolved)) {
			if key == bundle.PluginsKey {
				continue
			}
			r.writePlain("  %-12s %v\n", key+":", resolved[key])
		}
		r.writePlain("  %-12s %v\n", "plugins:", resolved.PluginNames())
	}
	return nil
}
