package cache

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

type fakeFetcher struct {
	tracks map[string][]models.Track
	err    error
	calls  int
}

func (f *fakeFetcher) PlaylistTracks(_ context.Context, id string) ([]models.Track, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks[id], nil
}

func newTestCache() (*Cache, *fakeFetcher) {
	fetcher := &fakeFetcher{tracks: map[string][]models.Track{
		"p1": {{ID: "t1", Name: "One"}, {ID: "t2", Name: "Two"}},
	}}
	return New(fetcher, shared.NewLogger(io.Discard)), fetcher
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	playlist := models.Playlist{ID: "p1", Name: "Mix", SnapshotID: "s1"}

	t.Run("Resolve fetches once while clean", func(t *testing.T) {
		c, fetcher := newTestCache()

		tracks, err := c.Resolve(ctx, playlist)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		c.ClearDirty()

		if _, err := c.Resolve(ctx, playlist); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if fetcher.calls != 1 {
			t.Errorf("expected 1 fetch, got %d", fetcher.calls)
		}
	})

	t.Run("Resolve refetches on token change", func(t *testing.T) {
		c, fetcher := newTestCache()
		c.Resolve(ctx, playlist)
		c.ClearDirty()

		changed := playlist
		changed.SnapshotID = "s2"
		if _, err := c.Resolve(ctx, changed); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if fetcher.calls != 2 {
			t.Errorf("expected 2 fetches, got %d", fetcher.calls)
		}
		if !c.NeedsReconcile(changed) {
			t.Error("expected changed contents to need reconciliation")
		}
	})

	t.Run("Resolve refetches dirty entries", func(t *testing.T) {
		c, fetcher := newTestCache()
		c.Resolve(ctx, playlist)
		c.Resolve(ctx, playlist)
		if fetcher.calls != 2 {
			t.Errorf("expected 2 fetches, got %d", fetcher.calls)
		}
	})

	t.Run("Resolve returns a copy", func(t *testing.T) {
		c, _ := newTestCache()
		tracks, _ := c.Resolve(ctx, playlist)
		c.ClearDirty()
		tracks[0].Name = "changed"

		again, _ := c.Resolve(ctx, playlist)
		if again[0].Name != "One" {
			t.Error("expected cached tracks to be unaffected by caller mutation")
		}
	})

	t.Run("fetch error leaves entry untouched", func(t *testing.T) {
		c, fetcher := newTestCache()
		fetcher.err = errors.New("boom")

		if _, err := c.Resolve(ctx, playlist); err == nil {
			t.Fatal("expected error")
		}
		if len(c.Snapshot()) != 0 {
			t.Error("expected no entry after failed fetch")
		}
	})

	t.Run("NeedsReconcile", func(t *testing.T) {
		c, _ := newTestCache()
		if !c.NeedsReconcile(playlist) {
			t.Error("expected unknown playlist to need reconciliation")
		}

		c.Refresh(ctx, playlist)
		if !c.NeedsReconcile(playlist) {
			t.Error("expected freshly fetched playlist to be dirty")
		}

		c.ClearDirty()
		if c.NeedsReconcile(playlist) {
			t.Error("expected clean playlist with same token to be settled")
		}

		c.Refresh(ctx, playlist)
		if c.NeedsReconcile(playlist) {
			t.Error("expected refetch with same token to stay clean")
		}
	})

	t.Run("RecordAppend", func(t *testing.T) {
		c, fetcher := newTestCache()
		c.Resolve(ctx, playlist)
		c.ClearDirty()

		c.RecordAppend("p1", "s2", models.Track{ID: "t3"})
		summary := c.Snapshot()[0]
		if summary.TrackCount != 3 || summary.SnapshotID != "s2" || !summary.Dirty {
			t.Errorf("unexpected summary after append: %+v", summary)
		}

		c.RecordAppend("unknown", "x", models.Track{ID: "t4"})
		if len(c.Snapshot()) != 1 {
			t.Error("expected unknown playlist to be ignored")
		}
		if fetcher.calls != 1 {
			t.Errorf("expected append not to fetch, got %d fetches", fetcher.calls)
		}
	})

	t.Run("ClearMarked keeps entries changed after they were read", func(t *testing.T) {
		c, _ := newTestCache()
		other := models.Playlist{ID: "p2", Name: "Other", SnapshotID: "o1"}
		marks := make(Marks)

		if _, err := c.RefreshMarked(ctx, playlist, marks); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		c.RefreshMarked(ctx, other, marks)
		c.RecordAppend("p2", "o2", models.Track{ID: "t9"})
		c.ClearMarked(marks)

		if c.NeedsReconcile(playlist) {
			t.Error("expected read entry to be clean")
		}
		if !c.NeedsReconcile(models.Playlist{ID: "p2", SnapshotID: "o2"}) {
			t.Error("expected entry appended after being read to stay dirty")
		}
	})

	t.Run("RefreshMarked records nothing on failure", func(t *testing.T) {
		c, fetcher := newTestCache()
		fetcher.err = errors.New("boom")
		marks := make(Marks)

		if _, err := c.RefreshMarked(ctx, playlist, marks); err == nil {
			t.Fatal("expected error")
		}
		if len(marks) != 0 {
			t.Errorf("expected no marks, got %v", marks)
		}
	})

	t.Run("Snapshot ordered by name", func(t *testing.T) {
		c, _ := newTestCache()
		c.Refresh(ctx, models.Playlist{ID: "p2", Name: "Zed", SnapshotID: "a"})
		c.Refresh(ctx, models.Playlist{ID: "p1", Name: "Alpha", SnapshotID: "b"})

		summaries := c.Snapshot()
		if len(summaries) != 2 || summaries[0].Name != "Alpha" {
			t.Errorf("unexpected order: %+v", summaries)
		}
	})
}
