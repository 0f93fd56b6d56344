package tasks

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/desertthunder/mqtt-automations/internal/cache"
	"github.com/desertthunder/mqtt-automations/internal/library"
	"github.com/desertthunder/mqtt-automations/internal/models"
)

// ReconcileResult counts how the remote corpus was classified against local files.
type ReconcileResult struct {
	Added      int // appended to the download queue
	Candidates int // missing locally and playable, before dropping already queued tracks
	Skipped    int // already downloaded under the same id
	Aliased    int // downloaded under the linked id
	Stamped    int // matched by filename and stamped with the id
	Unplayable int // missing locally but not playable
}

// Summary is the one-line report of the run.
func (r *ReconcileResult) Summary() string {
	return fmt.Sprintf("Added %d tracks to your download playlist.", r.Added)
}

// Reconcile appends every remote track that is neither downloaded nor already queued to the
// download queue.
func (e *Engine) Reconcile(ctx context.Context, progress chan<- ProgressUpdate) (*ReconcileResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.reconcile(ctx, progress)
}

func (e *Engine) reconcile(ctx context.Context, progress chan<- ProgressUpdate) (*ReconcileResult, error) {
	marks := make(cache.Marks)
	corpus, playlists, err := e.collect(ctx, marks, progress)
	if err != nil {
		return nil, err
	}

	dirs := []string{e.dirs.Processed, e.dirs.KeyMixed}
	e.sendProgress(progress, buildIndexUpdate(dirs))
	index, err := e.library.Build(ctx, dirs...)
	if err != nil {
		return nil, fmt.Errorf("failed to index local files: %w", err)
	}

	result := &ReconcileResult{}
	e.sendProgress(progress, classifyUpdate(len(corpus)))
	candidates, err := e.classify(corpus, index, result)
	if err != nil {
		return nil, err
	}
	result.Candidates = len(candidates)

	e.sendProgress(progress, fetchQueueUpdate())
	queuePlaylist := e.queuePlaylist(playlists)
	queued, err := e.cache.Refresh(ctx, queuePlaylist)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch download playlist: %w", err)
	}

	var toAdd []models.Track
	for _, t := range candidates {
		if !queuedAlready(queued, t) {
			toAdd = append(toAdd, t)
		}
	}

	if len(toAdd) > 0 {
		e.sendProgress(progress, appendQueueUpdate(len(toAdd)))
		uris := make([]string, len(toAdd))
		for i, t := range toAdd {
			uris[i] = t.URI
		}

		snapshot, err := e.remote.AddToPlaylist(ctx, queuePlaylist.ID, uris)
		if err != nil {
			return nil, fmt.Errorf("failed to add tracks to download playlist: %w", err)
		}
		for _, t := range toAdd {
			e.cache.RecordAppend(queuePlaylist.ID, snapshot, t)
		}
	}
	result.Added = len(toAdd)

	e.cache.ClearMarked(marks)
	e.logger.Info("reconciled download playlist",
		"added", result.Added, "candidates", result.Candidates, "skipped", result.Skipped,
		"aliased", result.Aliased, "stamped", result.Stamped, "unplayable", result.Unplayable)

	return result, nil
}

// collect gathers saved tracks and the tracks of every eligible playlist whose cached copy has
// not been reconciled, deduplicated by id in first-seen order. The generation of each refetched
// playlist is recorded in marks.
func (e *Engine) collect(ctx context.Context, marks cache.Marks, progress chan<- ProgressUpdate) ([]models.Track, []models.Playlist, error) {
	user, err := e.remote.CurrentUser(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch current user: %w", err)
	}

	e.sendProgress(progress, fetchSavedUpdate())
	saved, err := e.remote.SavedTracks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch saved tracks: %w", err)
	}

	e.sendProgress(progress, fetchPlaylistsUpdate())
	playlists, err := e.remote.Playlists(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch playlists: %w", err)
	}

	var targets []models.Playlist
	for _, p := range playlists {
		if p.OwnerID != user.ID || p.Collaborative || p.ID == e.playlists.DownloadQueue {
			continue
		}
		if slices.Contains(e.playlists.Skip, p.ID) {
			continue
		}
		if e.cache.NeedsReconcile(p) {
			targets = append(targets, p)
		}
	}

	seen := make(map[string]bool)
	var corpus []models.Track
	add := func(tracks []models.Track) {
		for _, t := range tracks {
			if t.ID == "" || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			corpus = append(corpus, t)
		}
	}

	add(saved)
	for i, p := range targets {
		e.sendProgress(progress, fetchPlaylistTracksUpdate(i+1, len(targets), p))
		tracks, err := e.cache.RefreshMarked(ctx, p, marks)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch playlist %s: %w", p.Name, err)
		}
		add(tracks)
	}

	e.logger.Debug("collected remote tracks", "saved", len(saved), "playlists", len(targets), "tracks", len(corpus))
	return corpus, playlists, nil
}

// classify splits the corpus into download candidates. Tracks found locally under another id or
// by filename are stamped with their own id so the next index finds them directly.
func (e *Engine) classify(corpus []models.Track, index library.Index, result *ReconcileResult) ([]models.Track, error) {
	var candidates []models.Track
	for _, t := range corpus {
		if _, ok := index[t.ID]; ok {
			result.Skipped++
			continue
		}

		if linked := t.LinkedID(); linked != "" {
			if entry, ok := index[linked]; ok {
				if _, err := e.library.Stamp(entry.Path, t.ID); err != nil {
					return nil, err
				}
				result.Aliased++
				continue
			}
		}

		path := library.PathFor(e.dirs.Processed, t.Key())
		if _, err := os.Stat(path); err == nil {
			if _, err := e.library.Stamp(path, t.ID); err != nil {
				return nil, err
			}
			result.Stamped++
			continue
		}

		if !t.Playable {
			result.Unplayable++
			continue
		}
		candidates = append(candidates, t)
	}
	return candidates, nil
}

func (e *Engine) queuePlaylist(playlists []models.Playlist) models.Playlist {
	for _, p := range playlists {
		if p.ID == e.playlists.DownloadQueue {
			return p
		}
	}
	return models.Playlist{ID: e.playlists.DownloadQueue, Name: "download queue"}
}

func queuedAlready(queued []models.Track, t models.Track) bool {
	for _, q := range queued {
		if q.Matches(t.ID) || q.Matches(t.LinkedID()) {
			return true
		}
	}
	return false
}
