package tasks

import (
	"fmt"

	"github.com/desertthunder/mqtt-automations/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	ProcessDownloads Phase = iota
	FetchSaved
	FetchPlaylists
	FetchPlaylistTracks
	BuildIndex
	Classify
	FetchQueue
	AppendQueue
)

func (p Phase) String() string {
	switch p {
	case ProcessDownloads:
		return "process_downloads"
	case FetchSaved:
		return "fetch_saved"
	case FetchPlaylists:
		return "fetch_playlists"
	case FetchPlaylistTracks:
		return "fetch_playlist_tracks"
	case BuildIndex:
		return "build_index"
	case Classify:
		return "classify"
	case FetchQueue:
		return "fetch_queue"
	case AppendQueue:
		return "append_queue"
	default:
		return ""
	}
}

func listDownloadsUpdate(dir string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessDownloads,
		Message: fmt.Sprintf("Listing downloaded files in %s...", dir),
	}
}

func processedFileUpdate(step, total int, key string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessDownloads,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, key),
	}
}

func fetchSavedUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSaved,
		Step:    1,
		Total:   1,
		Message: "Fetching saved tracks...",
	}
}

func fetchPlaylistsUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    1,
		Total:   1,
		Message: "Fetching playlists...",
	}
}

func fetchPlaylistTracksUpdate(step, total int, p models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylistTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching %s...", step, total, p.Name),
		Data:    p,
	}
}

func buildIndexUpdate(dirs []string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BuildIndex,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Indexing %d local directories...", len(dirs)),
	}
}

func classifyUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Classify,
		Total:   total,
		Message: fmt.Sprintf("Checking %d tracks against local files...", total),
	}
}

func fetchQueueUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchQueue,
		Step:    1,
		Total:   1,
		Message: "Fetching download playlist...",
	}
}

func appendQueueUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AppendQueue,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Adding %d tracks to download playlist...", count),
	}
}
