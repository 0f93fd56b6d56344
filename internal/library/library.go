// Package library indexes locally downloaded audio files by remote track id.
//
// Each processed file carries the remote ids it satisfies in its comment tag as a comma-separated
// list, so a single file can stand in for several remote tracks (relinked or duplicate releases).
// The index is rebuilt from disk on every run.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Extension is the only audio file extension the library manages.
const Extension = ".mp3"

// Entry locates the local file that satisfies a remote track id.
type Entry struct {
	Key  string
	Path string
}

// Index maps remote track ids to local files.
type Index map[string]Entry

// AudioFile is a local audio file and its tags.
type AudioFile struct {
	Path string
	Tags Tags
}

// Library scans and stamps audio files through a [TagStore].
type Library struct {
	store  TagStore
	logger *log.Logger
}

// New creates a [Library] backed by store.
func New(store TagStore, logger *log.Logger) *Library {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Library{store: store, logger: shared.WithLogger(logger, "component", "library")}
}

// PathFor returns the path a file with key would have in dir.
func PathFor(dir, key string) string {
	return filepath.Join(dir, key+Extension)
}

func isAudio(entry os.DirEntry) bool {
	return entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(entry.Name()), Extension)
}

// audioPaths lists the audio files directly inside dir, sorted by name.
func audioPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if isAudio(entry) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

// ListAudio returns every audio file in dir with its tags.
func (l *Library) ListAudio(dir string) ([]AudioFile, error) {
	return l.listAudio(context.Background(), dir)
}

// listAudio stops with ctx's error when ctx is done before every file has been read.
func (l *Library) listAudio(ctx context.Context, dir string) ([]AudioFile, error) {
	paths, err := audioPaths(dir)
	if err != nil {
		return nil, err
	}

	files := make([]AudioFile, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tags, err := l.store.Read(path)
		if err != nil {
			return nil, err
		}
		files = append(files, AudioFile{Path: path, Tags: tags})
	}
	return files, nil
}

// Scan indexes the audio files in dir by the ids in their comment tag. Untagged files are skipped.
//
// When two files in dir claim the same id the first one by name is kept.
func (l *Library) Scan(dir string) (Index, error) {
	return l.scan(context.Background(), dir)
}

func (l *Library) scan(ctx context.Context, dir string) (Index, error) {
	files, err := l.listAudio(ctx, dir)
	if err != nil {
		return nil, err
	}

	index := make(Index)
	for _, file := range files {
		ids := file.Tags.IDs()
		if len(ids) == 0 {
			continue
		}
		entry := Entry{Key: file.Tags.Key(), Path: file.Path}
		for _, id := range ids {
			if _, ok := index[id]; !ok {
				index[id] = entry
			}
		}
	}

	l.logger.Debug("scanned directory", "dir", dir, "files", len(files), "ids", len(index))
	return index, nil
}

// Build scans dirs concurrently and merges the results in argument order; earlier
// directories win when an id appears in more than one. Any scan failure fails the build and
// stops the other scans.
func (l *Library) Build(ctx context.Context, dirs ...string) (Index, error) {
	results := make([]Index, len(dirs))

	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		g.Go(func() error {
			index, err := l.scan(gctx, dir)
			if err != nil {
				return err
			}
			results[i] = index
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(Index)
	for _, index := range results {
		for id, entry := range index {
			if _, ok := merged[id]; !ok {
				merged[id] = entry
			}
		}
	}
	return merged, nil
}

// Stamp adds id to the comment of the file at path unless it is already listed.
// It reports whether the file was written.
func (l *Library) Stamp(path, id string) (bool, error) {
	tags, err := l.store.Read(path)
	if err != nil {
		return false, err
	}

	ids := tags.IDs()
	if slices.Contains(ids, id) {
		return false, nil
	}

	if err := l.store.WriteComment(path, strings.Join(append(ids, id), ",")); err != nil {
		return false, err
	}
	l.logger.Debug("stamped file", "path", path, "id", id)
	return true, nil
}

// Tag replaces the comment of the file at path with id.
func (l *Library) Tag(path, id string) error {
	return l.store.WriteComment(path, id)
}
