package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/mqtt-automations/internal/formatter"
	"github.com/desertthunder/mqtt-automations/internal/repositories"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) requireRuns(ctx context.Context) (*repositories.RunRepository, func(), error) {
	repo, db, err := r.openRuns(ctx)
	if err != nil {
		return nil, nil, err
	}
	if repo == nil {
		return nil, nil, fmt.Errorf("%w: database.path is not set", shared.ErrMissingConfig)
	}
	return repo, func() { db.Close() }, nil
}

// History lists the most recently handled commands.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.requireRuns(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := repo.Recent(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if path := cmd.String("csv"); path != "" {
		if err := formatter.WriteRunsCSV(runs, path); err != nil {
			return err
		}
		r.logger.Info("runs exported", "path", path, "count", len(runs))
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.RunsToTable(runs))
}

// HistoryShow prints one run with its reconciliation counters, if any were recorded.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	repo, closeDB, err := r.requireRuns(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	r.writePlain("ID:       %s\n", run.ID)
	r.writePlain("Topic:    %s\n", run.Topic)
	r.writePlain("Payload:  %s\n", run.Payload)
	r.writePlain("Status:   %s\n", run.Status)
	r.writePlain("Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		r.writePlain("Duration: %s\n", run.Duration())
	}
	if run.Result != "" {
		r.writePlainln("%s", run.Result)
	}
	if run.Error != "" {
		r.writePlainln("%s", formatter.Error(errors.New(run.Error)))
	}

	stats, err := repo.Stats(ctx, run.ID)
	if errors.Is(err, repositories.ErrRunNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.writePlain("\n%s", formatter.StatsToText(*stats))
}
