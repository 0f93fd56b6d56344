// Package cache keeps an in-memory copy of playlist contents keyed by playlist id.
//
// An entry is trusted while the playlist's remote snapshot token is unchanged and the entry is
// clean. The dirty flag marks contents that have not been through a reconciliation pass yet: it is
// set whenever new contents are fetched or appended and cleared only by [Cache.ClearDirty] or
// [Cache.ClearMarked].
//
// Every change to an entry gives it a new generation. A pass records the generations it read in
// [Marks] so that appends made while it runs are not marked reconciled when it finishes.
package cache

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// Fetcher loads the full track list of a playlist.
type Fetcher interface {
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error)
}

type entry struct {
	name      string
	snapshot  string
	tracks    []models.Track
	dirty     bool
	gen       uint64
	fetchedAt time.Time
}

// Marks maps playlist ids to the entry generation a reconciliation pass read.
type Marks map[string]uint64

// Summary describes one cache entry.
type Summary struct {
	PlaylistID string    `json:"playlist_id"`
	Name       string    `json:"name"`
	SnapshotID string    `json:"snapshot_id"`
	TrackCount int       `json:"track_count"`
	Dirty      bool      `json:"dirty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Cache is a playlist cache guarded by a single mutex.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	fetcher Fetcher
	now     func() time.Time
	logger  *log.Logger
}

// New creates an empty [Cache] that loads playlists through fetcher.
func New(fetcher Fetcher, logger *log.Logger) *Cache {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Cache{
		entries: make(map[string]*entry),
		fetcher: fetcher,
		now:     time.Now,
		logger:  shared.WithLogger(logger, "component", "cache"),
	}
}

func (c *Cache) stale(p models.Playlist) bool {
	e, ok := c.entries[p.ID]
	return !ok || e.snapshot != p.SnapshotID || e.dirty
}

// Resolve returns the tracks of p, fetching them only when the cached entry is missing, out of
// date or dirty.
func (c *Cache) Resolve(ctx context.Context, p models.Playlist) ([]models.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stale(p) {
		return slices.Clone(c.entries[p.ID].tracks), nil
	}
	return c.fetch(ctx, p)
}

// Refresh fetches the tracks of p unconditionally and replaces the cached entry.
func (c *Cache) Refresh(ctx context.Context, p models.Playlist) ([]models.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fetch(ctx, p)
}

// RefreshMarked is [Cache.Refresh] that also records the generation of the new entry in marks.
func (c *Cache) RefreshMarked(ctx context.Context, p models.Playlist, marks Marks) ([]models.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks, err := c.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	marks[p.ID] = c.entries[p.ID].gen
	return tracks, nil
}

func (c *Cache) next() uint64 {
	c.gen++
	return c.gen
}

// fetch must be called with mu held.
func (c *Cache) fetch(ctx context.Context, p models.Playlist) ([]models.Track, error) {
	tracks, err := c.fetcher.PlaylistTracks(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	old, existed := c.entries[p.ID]
	dirty := !existed || old.dirty || old.snapshot != p.SnapshotID

	c.entries[p.ID] = &entry{
		name:      p.Name,
		snapshot:  p.SnapshotID,
		tracks:    tracks,
		dirty:     dirty,
		gen:       c.next(),
		fetchedAt: c.now(),
	}
	c.logger.Debug("fetched playlist", "playlist", p.Name, "tracks", len(tracks), "dirty", dirty)

	return slices.Clone(tracks), nil
}

// NeedsReconcile reports whether p has contents that have not been reconciled: no entry, a
// different snapshot token, or a dirty entry.
func (c *Cache) NeedsReconcile(p models.Playlist) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stale(p)
}

// RecordAppend records a track appended to a cached playlist along with the snapshot token the
// append produced, and marks the entry dirty. Unknown playlists are ignored.
func (c *Cache) RecordAppend(playlistID, snapshot string, track models.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[playlistID]
	if !ok {
		return
	}
	e.tracks = append(e.tracks, track)
	if snapshot != "" {
		e.snapshot = snapshot
	}
	e.dirty = true
	e.gen = c.next()
}

// ClearDirty marks every entry reconciled.
func (c *Cache) ClearDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.dirty = false
	}
}

// ClearMarked clears the dirty flag of each entry in marks that has not changed since it was read.
// Entries fetched or appended to after that keep their dirty flag.
func (c *Cache) ClearMarked(marks Marks) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, gen := range marks {
		if e, ok := c.entries[id]; ok && e.gen == gen {
			e.dirty = false
		}
	}
}

// Snapshot summarises the cached entries ordered by playlist name.
func (c *Cache) Snapshot() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summaries := make([]Summary, 0, len(c.entries))
	for id, e := range c.entries {
		summaries = append(summaries, Summary{
			PlaylistID: id,
			Name:       e.name,
			SnapshotID: e.snapshot,
			TrackCount: len(e.tracks),
			Dirty:      e.dirty,
			FetchedAt:  e.fetchedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name == summaries[j].Name {
			return summaries[i].PlaylistID < summaries[j].PlaylistID
		}
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}
