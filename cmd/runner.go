package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/cache"
	"github.com/desertthunder/mqtt-automations/internal/formatter"
	"github.com/desertthunder/mqtt-automations/internal/library"
	"github.com/desertthunder/mqtt-automations/internal/repositories"
	"github.com/desertthunder/mqtt-automations/internal/services"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/desertthunder/mqtt-automations/internal/tasks"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	remote     tasks.Remote
	tags       library.TagStore
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Remote and Tags are built from the configuration when nil.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Remote     tasks.Remote
	Tags       library.TagStore
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Tags == nil {
		opts.Tags = library.NewID3Store()
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		remote:     opts.Remote,
		tags:       opts.Tags,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, reconcileCommand, processDownloadsCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies the log level.
//
// A missing file keeps the defaults so that "setup config" can create it.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	config, err := shared.LoadConfig(r.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	case err != nil:
		return ctx, err
	default:
		r.config = config
	}

	level := r.config.Logging.Level
	if cmd.Bool("debug") {
		level = "debug"
	}
	shared.ApplyLogLevel(r.logger, level)
	return ctx, nil
}

// newEngine builds the task engine and its playlist cache from the configuration.
func (r *Runner) newEngine(ctx context.Context) (*tasks.Engine, *cache.Cache, error) {
	if err := r.config.Validate(); err != nil {
		return nil, nil, err
	}

	remote := r.remote
	if remote == nil {
		httpClient, err := services.NewHTTPClient(ctx, r.config.Spotify, r.logger)
		if err != nil {
			return nil, nil, err
		}
		transport := services.NewSpotifyTransport(httpClient, r.config.Spotify.Market)
		policy := services.NewPolicy(r.config.Spotify.Retry, r.logger)
		remote = services.NewMusicClient(transport, policy, r.config.Spotify.Limits, r.logger)
	}

	c := cache.New(remote, r.logger)
	lib := library.New(r.tags, r.logger)
	return tasks.NewEngine(remote, c, lib, r.config, r.logger), c, nil
}

// openRuns opens the history database. It returns nil when no database is configured.
func (r *Runner) openRuns(ctx context.Context) (*repositories.RunRepository, *sqlx.DB, error) {
	if r.config.Database.Path == "" {
		return nil, nil, nil
	}
	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repositories.NewRunRepository(db), db, nil
}

// watch prints progress updates until the channel is closed. The returned channel is closed
// once every update has been written.
func (r *Runner) watch(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("%s\n", formatter.Progress(update))
		}
	}()
	return done
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
