package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/cache"
	"github.com/desertthunder/mqtt-automations/internal/library"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// Remote is the remote music client the engine drives. It is implemented by services.MusicClient.
type Remote interface {
	CurrentUser(ctx context.Context) (models.User, error)
	Playlists(ctx context.Context) ([]models.Playlist, error)
	SavedTracks(ctx context.Context) ([]models.Track, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error)
	AddToPlaylist(ctx context.Context, playlistID string, uris []string) (string, error)
	RemoveFromPlaylist(ctx context.Context, playlistID string, uris []string) (string, error)
	SaveTracks(ctx context.Context, ids []string) error
	CurrentlyPlaying(ctx context.Context) (*models.PlaybackState, error)
	TogglePlay(ctx context.Context) (string, error)
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	StartPlayback(ctx context.Context, deviceName string, uris []string) error
}

// Engine runs the bridge's commands against the remote account and the local library.
//
// Post-download processing and reconciliation mutate the shared download queue and are
// serialised: at most one of them runs at a time.
type Engine struct {
	remote    Remote
	cache     *cache.Cache
	library   *library.Library
	dirs      shared.DirectoriesConfig
	playlists shared.PlaylistsConfig
	config    *shared.Config
	logger    *log.Logger

	mu sync.Mutex
}

// NewEngine creates an [Engine].
func NewEngine(remote Remote, c *cache.Cache, lib *library.Library, cfg *shared.Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{
		remote:    remote,
		cache:     c,
		library:   lib,
		dirs:      cfg.Directories,
		playlists: cfg.Playlists,
		config:    cfg,
		logger:    shared.WithLogger(logger, "component", "tasks"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// PopulateResult is the outcome of the post-download and reconciliation workflow.
type PopulateResult struct {
	Downloads *ProcessResult
	Reconcile *ReconcileResult
}

// Summary is the two-line report published on success.
func (r *PopulateResult) Summary() string {
	return r.Downloads.Summary() + "\n" + r.Reconcile.Summary()
}

// Populate processes downloaded files and then reconciles the download queue.
//
// When post-download processing fails the queue is not reconciled and the error wraps
// [shared.ErrPostDownload].
func (e *Engine) Populate(ctx context.Context, progress chan<- ProgressUpdate) (*PopulateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	downloads, err := e.processDownloads(ctx, progress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPostDownload, err)
	}

	reconciled, err := e.reconcile(ctx, progress)
	if err != nil {
		return nil, err
	}

	return &PopulateResult{Downloads: downloads, Reconcile: reconciled}, nil
}
