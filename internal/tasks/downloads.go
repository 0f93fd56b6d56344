package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/mqtt-automations/internal/library"
)

// ProcessResult is the outcome of post-download processing.
type ProcessResult struct {
	Downloaded int      // audio files found in the downloads directory
	Processed  int      // files matched to a queued track
	Removed    []string // track URIs removed from the download queue
}

// Summary is the one-line report of the run.
func (r *ProcessResult) Summary() string {
	if r.Downloaded == 0 {
		return "No downloaded tracks to process."
	}
	return fmt.Sprintf("Processed %d/%d downloaded tracks.", r.Processed, r.Downloaded)
}

// ProcessDownloads files newly downloaded audio under the key-mixed directory and removes the
// matching tracks from the download queue.
func (e *Engine) ProcessDownloads(ctx context.Context, progress chan<- ProgressUpdate) (*ProcessResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.processDownloads(ctx, progress)
}

// processDownloads matches each downloaded file to a queued track by filename key, tags it with
// the track id and moves it to key_mixed/{key}.mp3, deleting it instead when that file exists.
//
// Tracks handled before a failure are still removed from the queue; a removal failure is joined
// to the processing error.
func (e *Engine) processDownloads(ctx context.Context, progress chan<- ProgressUpdate) (result *ProcessResult, err error) {
	e.sendProgress(progress, listDownloadsUpdate(e.dirs.Downloads))
	files, err := e.library.ListAudio(e.dirs.Downloads)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloaded files: %w", err)
	}

	result = &ProcessResult{Downloaded: len(files)}
	if len(files) == 0 {
		return result, nil
	}

	queueID := e.playlists.DownloadQueue
	queued, err := e.remote.PlaylistTracks(ctx, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch download playlist: %w", err)
	}

	defer func() {
		if len(result.Removed) == 0 {
			return
		}
		// removal runs even after ctx is cancelled
		if _, rmErr := e.remote.RemoveFromPlaylist(context.WithoutCancel(ctx), queueID, result.Removed); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove processed tracks from download playlist: %w", rmErr))
			return
		}
		e.logger.Info("removed processed tracks from download playlist", "count", len(result.Removed))
	}()

	for i, file := range files {
		key := file.Tags.Key()
		e.sendProgress(progress, processedFileUpdate(i+1, len(files), key))

		for _, t := range queued {
			if t.Key() != key {
				continue
			}

			if err := e.library.Tag(file.Path, t.ID); err != nil {
				return result, err
			}

			dest := library.PathFor(e.dirs.KeyMixed, key)
			if _, statErr := os.Stat(dest); statErr == nil {
				if err := os.Remove(file.Path); err != nil {
					return result, fmt.Errorf("failed to delete duplicate download: %w", err)
				}
				e.logger.Debug("deleted duplicate download", "path", file.Path, "existing", dest)
			} else {
				if err := moveFile(file.Path, dest); err != nil {
					return result, err
				}
				e.logger.Debug("moved download", "from", file.Path, "to", dest)
			}

			result.Removed = append(result.Removed, t.URI)
			result.Processed++
			break
		}
	}

	e.logger.Info("processed downloads", "processed", result.Processed, "downloaded", result.Downloaded)
	return result, nil
}

// moveFile renames src to dst, copying across filesystems when a rename is not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to move %s: %w", src, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to move %s: %w", src, err)
	}

	in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove %s after copy: %w", src, err)
	}
	return nil
}
