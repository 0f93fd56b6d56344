package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/mqtt-automations/internal/bridge"
	"github.com/desertthunder/mqtt-automations/internal/server"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve connects to the broker and handles commands until SIGINT or SIGTERM.
//
// When a database is configured every command is recorded; when the status server is enabled
// it runs alongside the bridge and both stop together.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, c, err := r.newEngine(ctx)
	if err != nil {
		return err
	}

	repo, db, err := r.openRuns(ctx)
	if err != nil {
		return err
	}

	var recorder bridge.RunRecorder
	var lister server.RunLister
	if repo != nil {
		defer db.Close()
		recorder = repo
		lister = repo
		r.logger.Info("recording runs", "database", r.config.Database.Path)
	}

	client := bridge.NewClient(r.config.MQTT, r.logger)
	b := bridge.New(client, engine, recorder, r.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx)
	})

	if r.config.Server.Port > 0 && !cmd.Bool("no-status") {
		status := server.NewRouter(server.StatusOpts{
			Bus:    b,
			Runs:   lister,
			Cache:  c,
			Logger: r.logger,
		})
		srv := server.New(r.config.Server.Addr(), status, r.logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	r.logger.Info("bridge started", "broker", r.config.MQTT.Broker())
	err = g.Wait()
	r.logger.Info("bridge stopped")
	return err
}
