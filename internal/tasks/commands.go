package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// LikeTarget is the add-to-playlist payload that saves the track to the library instead.
const LikeTarget = "Like"

const nothingPlaying = "Nothing is currently playing."

// ParseTargets splits an add-to-playlist payload into playlist names, dropping empty entries.
func ParseTargets(payload string) []string {
	var names []string
	for _, part := range strings.Split(payload, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// AddCurrentTrack adds the currently playing track to the playlists named in payload, or saves it
// to the library when payload is [LikeTarget].
//
// The result starts with the track's filename key followed by one line per target. Every name
// must match a playlist exactly; otherwise nothing is changed and the error wraps
// [shared.ErrPlaylistNotFound].
func (e *Engine) AddCurrentTrack(ctx context.Context, payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", fmt.Errorf("%w: no playlist names given", shared.ErrInvalidInput)
	}

	state, err := e.remote.CurrentlyPlaying(ctx)
	if err != nil {
		return "", err
	}
	if state == nil || state.Track == nil {
		return nothingPlaying, nil
	}
	track := *state.Track

	lines := []string{track.Key()}
	if payload == LikeTarget {
		line, err := e.like(ctx, track)
		if err != nil {
			return "", err
		}
		return strings.Join(append(lines, line), "\n"), nil
	}

	names := ParseTargets(payload)
	playlists, err := e.remote.Playlists(ctx)
	if err != nil {
		return "", err
	}

	targets := make([]models.Playlist, 0, len(names))
	var missing []string
	for _, name := range names {
		p, ok := models.FindPlaylist(playlists, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		targets = append(targets, p)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, strings.Join(missing, ", "))
	}

	for _, p := range targets {
		tracks, err := e.cache.Resolve(ctx, p)
		if err != nil {
			return "", err
		}

		if models.ContainsTrack(tracks, track) {
			lines = append(lines, fmt.Sprintf("%s already contains track.", p.Name))
			continue
		}

		snapshot, err := e.remote.AddToPlaylist(ctx, p.ID, []string{track.URI})
		if err != nil {
			return "", err
		}
		e.cache.RecordAppend(p.ID, snapshot, track)
		lines = append(lines, fmt.Sprintf("Added to %s.", p.Name))
	}

	return strings.Join(lines, "\n"), nil
}

func (e *Engine) like(ctx context.Context, track models.Track) (string, error) {
	saved, err := e.remote.SavedTracks(ctx)
	if err != nil {
		return "", err
	}
	if models.ContainsTrack(saved, track) {
		return "Already exists in your library.", nil
	}
	if err := e.remote.SaveTracks(ctx, []string{track.ID}); err != nil {
		return "", err
	}
	return "Saved to your library.", nil
}

// Control runs a player command: toggle (or togglePlay), next or previous.
func (e *Engine) Control(ctx context.Context, command string) (string, error) {
	switch strings.TrimSpace(command) {
	case "toggle", "togglePlay":
		return e.remote.TogglePlay(ctx)
	case "next":
		if err := e.remote.Next(ctx); err != nil {
			return "", err
		}
		return "skipped next", nil
	case "previous":
		if err := e.remote.Previous(ctx); err != nil {
			return "", err
		}
		return "skipped previous", nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownCommand, command)
	}
}

// PlayPreset starts the playback preset configured for user.
func (e *Engine) PlayPreset(ctx context.Context, user string) (string, error) {
	user = strings.TrimSpace(user)
	preset, ok := e.config.Preset(user)
	if !ok {
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownPreset, user)
	}

	if err := e.remote.StartPlayback(ctx, preset.Device, preset.URIs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Started playback on %s.", preset.Device), nil
}
