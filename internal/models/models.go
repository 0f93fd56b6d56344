package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// LinkedTrack is the track a relinked track was substituted for.
type LinkedTrack struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Track represents a remote track.
//
// Two tracks are the same recording when their ids match or when one's id equals the other's linked id.
type Track struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Artists  []string     `json:"artists"`
	Playable bool         `json:"playable"`
	URI      string       `json:"uri"`
	Linked   *LinkedTrack `json:"linked,omitempty"`
}

// LinkedID returns the linked track id, or "" when the track is not relinked.
func (t Track) LinkedID() string {
	if t.Linked == nil {
		return ""
	}
	return t.Linked.ID
}

// Matches reports whether id identifies this recording directly or through its linked track.
func (t Track) Matches(id string) bool {
	return id != "" && (t.ID == id || t.LinkedID() == id)
}

// Key returns the filename key of the track.
func (t Track) Key() string {
	return shared.FilenameKey(t.Artists, t.Name)
}

// ContainsTrack reports whether tracks holds t, matched by id or linked id. Tracks without an id,
// such as local files, never match.
func ContainsTrack(tracks []Track, t Track) bool {
	linked := t.LinkedID()
	for _, other := range tracks {
		if other.ID == "" {
			continue
		}
		if other.ID == t.ID || other.ID == linked {
			return true
		}
	}
	return false
}

// Playlist represents playlist metadata as returned by the playlist listing.
type Playlist struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OwnerID       string `json:"owner_id"`
	Collaborative bool   `json:"collaborative"`
	SnapshotID    string `json:"snapshot_id"`
	TrackCount    int    `json:"track_count"`
}

// FindPlaylist returns the first playlist named name.
func FindPlaylist(playlists []Playlist, name string) (Playlist, bool) {
	for _, p := range playlists {
		if p.Name == name {
			return p, true
		}
	}
	return Playlist{}, false
}

// Device is an available playback device.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

// PlaybackState is the player state of the current user.
type PlaybackState struct {
	IsPlaying bool   `json:"is_playing"`
	DeviceID  string `json:"device_id"`
	Track     *Track `json:"track,omitempty"`
}

// User is the authenticated remote user.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// RunStatus is the outcome of a handled command.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunOK      RunStatus = "ok"
	RunError   RunStatus = "error"
)

// Run records one handled bus command.
type Run struct {
	ID         string     `db:"id" json:"id"`
	Topic      string     `db:"topic" json:"topic"`
	Payload    string     `db:"payload" json:"payload"`
	Status     RunStatus  `db:"status" json:"status"`
	Result     string     `db:"result" json:"result,omitempty"`
	Error      string     `db:"error" json:"error,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// NewRun creates a running [Run] for topic.
func NewRun(topic, payload string) *Run {
	return &Run{
		ID:        shared.GenerateID(),
		Topic:     topic,
		Payload:   payload,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Finish marks the run complete with either a result or an error.
func (r *Run) Finish(result string, err error) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Result = result
	if err != nil {
		r.Status = RunError
		r.Error = err.Error()
		return
	}
	r.Status = RunOK
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks required fields.
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id is required", shared.ErrInvalidInput)
	}
	if r.Topic == "" {
		return fmt.Errorf("%w: run topic is required", shared.ErrInvalidInput)
	}
	return nil
}

// ReconcileStats are the counters of one reconciliation workflow.
type ReconcileStats struct {
	RunID      string `db:"run_id" json:"run_id"`
	Candidates int    `db:"candidates" json:"candidates"`
	Added      int    `db:"added" json:"added"`
	Aliased    int    `db:"aliased" json:"aliased"`
	Stamped    int    `db:"stamped" json:"stamped"`
	Unplayable int    `db:"unplayable" json:"unplayable"`
	Processed  int    `db:"processed" json:"processed"`
	Downloaded int    `db:"downloaded" json:"downloaded"`
}
