// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the MQTT bridge
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Connect to the broker and handle automation commands until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-status",
				Usage: "Do not start the HTTP status server",
			},
		},
		Action: r.Serve,
	}
}

// reconcileCommand runs the populate workflow once
func reconcileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "reconcile",
		Aliases: []string{"populate"},
		Usage:   "Process downloaded files, then add missing tracks to the download playlist",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "skip-downloads",
				Usage: "Only reconcile the download playlist",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not print progress",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the result as JSON",
			},
		},
		Action: r.Reconcile,
	}
}

// processDownloadsCommand files downloaded tracks
func processDownloadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "process-downloads",
		Usage: "Tag and file downloaded tracks and remove them from the download playlist",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not print progress",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the result as JSON",
			},
		},
		Action: r.ProcessDownloads,
	}
}

// historyCommand inspects recorded runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recently handled commands",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of runs to show",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.StringFlag{
				Name:    "csv",
				Aliases: []string{"o"},
				Usage:   "Write runs to a CSV file",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show one run and its reconciliation counters",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.HistoryShow,
			},
		},
	}
}

// setupCommand prepares configuration and the database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create configuration or initialize the database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
