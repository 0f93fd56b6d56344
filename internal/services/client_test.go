package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/services"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	tu "github.com/desertthunder/mqtt-automations/internal/testing"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testLimits() shared.SpotifyLimits {
	return shared.SpotifyLimits{
		SavedTracksGet:   2,
		PlaylistGet:      2,
		PlaylistTrackGet: 2,
		PlaylistAdd:      2,
		PlaylistRemove:   2,
		LibrarySave:      2,
	}
}

func newTestClient(transport services.Transport) *services.MusicClient {
	policy := &services.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: noSleep}
	return services.NewMusicClient(transport, policy, testLimits(), shared.NewLogger(io.Discard))
}

func tracks(n int) []models.Track {
	result := make([]models.Track, n)
	for i := range result {
		id := fmt.Sprintf("t%d", i)
		result[i] = models.Track{ID: id, Name: id, URI: "spotify:track:" + id, Playable: true}
	}
	return result
}

func uris(ts []models.Track) []string {
	result := make([]string, len(ts))
	for i, t := range ts {
		result[i] = t.URI
	}
	return result
}

// hidingTransport drops the items of one playlist page while still reporting them as fetched,
// like a page made only of episodes.
type hidingTransport struct {
	*tu.FakeTransport
	hideOffset int
}

func (h *hidingTransport) PlaylistTracksPage(ctx context.Context, playlistID string, limit, offset int) (services.Page[models.Track], error) {
	page, err := h.FakeTransport.PlaylistTracksPage(ctx, playlistID, limit, offset)
	if offset == h.hideOffset {
		page.Items = nil
	}
	return page, err
}

func TestMusicClient(t *testing.T) {
	ctx := context.Background()

	t.Run("PlaylistTracks walks every page", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.AddPlaylist("p1", "Mix", tracks(5)...)

		got, err := newTestClient(fake).PlaylistTracks(ctx, "p1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 5 {
			t.Errorf("expected 5 tracks, got %d", len(got))
		}
		if n := fake.CallCount("PlaylistTracksPage"); n != 3 {
			t.Errorf("expected 3 page requests, got %d", n)
		}
	})

	t.Run("filtered page does not end the walk", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		all := tracks(6)
		fake.AddPlaylist("p1", "Mix", all...)

		got, err := newTestClient(&hidingTransport{FakeTransport: fake, hideOffset: 2}).PlaylistTracks(ctx, "p1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var ids []string
		for _, tr := range got {
			ids = append(ids, tr.ID)
		}
		if want := []string{"t0", "t1", "t4", "t5"}; fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, ids)
		}
		if n := fake.CallCount("PlaylistTracksPage"); n != 3 {
			t.Errorf("expected 3 page requests, got %d", n)
		}
	})

	t.Run("page is retried on transient failure", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.Saved = tracks(4)
		fake.FailNext("SavedTracksPage", nil, &services.APIError{Status: http.StatusBadGateway})

		got, err := newTestClient(fake).SavedTracks(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 4 {
			t.Errorf("expected 4 tracks, got %d", len(got))
		}
	})

	t.Run("listing fails as a whole", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.AddPlaylist("a", "A")
		fake.AddPlaylist("b", "B")
		fake.AddPlaylist("c", "C")
		failure := &services.APIError{Status: http.StatusServiceUnavailable}
		fake.FailNext("PlaylistsPage", nil, failure, failure, failure, failure, failure)

		got, err := newTestClient(fake).Playlists(ctx)
		if !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if got != nil {
			t.Errorf("expected no partial result, got %v", got)
		}
	})

	t.Run("invalid page size", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		client := services.NewMusicClient(fake, nil, shared.SpotifyLimits{}, shared.NewLogger(io.Discard))

		if _, err := client.Playlists(ctx); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("AddToPlaylist chunks at the limit", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.AddPlaylist("q", "Queue")

		snapshot, err := newTestClient(fake).AddToPlaylist(ctx, "q", uris(tracks(3)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(fake.Added["q"]) != 2 {
			t.Fatalf("expected 2 append calls, got %d", len(fake.Added["q"]))
		}
		if len(fake.Added["q"][0]) != 2 || len(fake.Added["q"][1]) != 1 {
			t.Errorf("unexpected chunks %v", fake.Added["q"])
		}
		if snapshot != fake.Playlists[0].SnapshotID {
			t.Errorf("expected last snapshot %q, got %q", fake.Playlists[0].SnapshotID, snapshot)
		}
	})

	t.Run("AddToPlaylist exact limit is one call", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.AddPlaylist("q", "Queue")

		if _, err := newTestClient(fake).AddToPlaylist(ctx, "q", uris(tracks(2))); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(fake.Added["q"]) != 1 {
			t.Errorf("expected 1 append call, got %d", len(fake.Added["q"]))
		}
	})

	t.Run("empty mutations make no calls", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		client := newTestClient(fake)

		if _, err := client.AddToPlaylist(ctx, "q", nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := client.RemoveFromPlaylist(ctx, "q", nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := client.SaveTracks(ctx, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(fake.Calls) != 0 {
			t.Errorf("expected no calls, got %v", fake.Calls)
		}
	})

	t.Run("RemoveFromPlaylist", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		all := tracks(3)
		fake.AddPlaylist("q", "Queue", all...)

		if _, err := newTestClient(fake).RemoveFromPlaylist(ctx, "q", uris(all[:2])); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ids := fake.PlaylistTrackIDs("q"); len(ids) != 1 || ids[0] != "t2" {
			t.Errorf("expected only t2 to remain, got %v", ids)
		}
	})

	t.Run("SaveTracks chunks", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		if err := newTestClient(fake).SaveTracks(ctx, []string{"a", "b", "c"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(fake.SaveCall) != 2 {
			t.Errorf("expected 2 save calls, got %d", len(fake.SaveCall))
		}
	})

	t.Run("TogglePlay", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.Playback = &models.PlaybackState{IsPlaying: true}
		client := newTestClient(fake)

		action, err := client.TogglePlay(ctx)
		if err != nil || action != "paused" {
			t.Fatalf("expected paused, got %q %v", action, err)
		}
		action, err = client.TogglePlay(ctx)
		if err != nil || action != "resumed" {
			t.Fatalf("expected resumed, got %q %v", action, err)
		}
	})

	t.Run("StartPlayback with a context", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.DeviceSet = []models.Device{{ID: "d1", Name: "Desk"}, {ID: "d2", Name: "Kitchen"}}
		fake.Playback = &models.PlaybackState{IsPlaying: true}

		err := newTestClient(fake).StartPlayback(ctx, "Kitchen", []string{"spotify:playlist:abc"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		expected := []string{"Devices", "PlaybackState", "Pause", "Transfer", "Shuffle", "Play"}
		if len(fake.Calls) != len(expected) {
			t.Fatalf("expected calls %v, got %v", expected, fake.Calls)
		}
		for i := range expected {
			if fake.Calls[i] != expected[i] {
				t.Errorf("call %d: expected %s, got %s", i, expected[i], fake.Calls[i])
			}
		}

		played := fake.Played[0]
		if played.DeviceID != "d2" || played.ContextURI != "spotify:playlist:abc" || played.URIs != nil {
			t.Errorf("unexpected play options %+v", played)
		}
	})

	t.Run("StartPlayback with tracks skips pause when idle", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.DeviceSet = []models.Device{{ID: "d2", Name: "Kitchen"}}

		list := []string{"spotify:track:a", "spotify:track:b"}
		if err := newTestClient(fake).StartPlayback(ctx, "Kitchen", list); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if fake.CallCount("Pause") != 0 {
			t.Error("expected no pause when nothing is playing")
		}
		if got := fake.Played[0]; got.ContextURI != "" || len(got.URIs) != 2 {
			t.Errorf("unexpected play options %+v", got)
		}
	})

	t.Run("StartPlayback unknown device", func(t *testing.T) {
		fake := tu.NewFakeTransport("me")
		fake.DeviceSet = []models.Device{{ID: "d1", Name: "Desk"}}

		err := newTestClient(fake).StartPlayback(ctx, "Kitchen", []string{"spotify:playlist:abc"})
		if !errors.Is(err, shared.ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
	})
}
