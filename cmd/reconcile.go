package main

import (
	"context"

	"github.com/desertthunder/mqtt-automations/internal/formatter"
	"github.com/desertthunder/mqtt-automations/internal/tasks"
	"github.com/urfave/cli/v3"
)

// progress returns a progress channel and a function that closes it and waits for the printer.
// When quiet is set the channel is nil.
func (r *Runner) progress(quiet bool) (chan tasks.ProgressUpdate, func()) {
	if quiet {
		return nil, func() {}
	}
	ch := make(chan tasks.ProgressUpdate, 50)
	done := r.watch(ch)
	return ch, func() {
		close(ch)
		<-done
	}
}

// Reconcile runs post-download processing and reconciliation once, like a populate command
// received over the bus.
func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	engine, _, err := r.newEngine(ctx)
	if err != nil {
		return err
	}

	progress, finish := r.progress(cmd.Bool("quiet") || cmd.Bool("json"))

	if cmd.Bool("skip-downloads") {
		result, err := engine.Reconcile(ctx, progress)
		finish()
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(result, true)
		}
		return r.writePlain("\n%s", formatter.ReconcileReport(result))
	}

	result, err := engine.Populate(ctx, progress)
	finish()
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writePlain("\n%s", formatter.PopulateReport(result))
}

// ProcessDownloads files newly downloaded tracks and removes them from the download playlist.
func (r *Runner) ProcessDownloads(ctx context.Context, cmd *cli.Command) error {
	engine, _, err := r.newEngine(ctx)
	if err != nil {
		return err
	}

	progress, finish := r.progress(cmd.Bool("quiet") || cmd.Bool("json"))
	result, err := engine.ProcessDownloads(ctx, progress)
	finish()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writePlain("\n%s", formatter.ProcessReport(result))
}
