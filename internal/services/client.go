package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// MusicClient is the remote music client used by the bridge.
//
// Every call goes through the retry [Policy]. Listings walk every page and fail as a whole;
// mutations are split into sequential chunks bounded by [shared.SpotifyLimits].
type MusicClient struct {
	transport Transport
	policy    *Policy
	limits    shared.SpotifyLimits
	logger    *log.Logger
}

// NewMusicClient creates a [MusicClient] over transport.
func NewMusicClient(transport Transport, policy *Policy, limits shared.SpotifyLimits, logger *log.Logger) *MusicClient {
	if policy == nil {
		policy = &Policy{MaxAttempts: defaultMaxAttempts}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &MusicClient{
		transport: transport,
		policy:    policy,
		limits:    limits,
		logger:    shared.WithLogger(logger, "component", "spotify"),
	}
}

// CurrentUser returns the authenticated user.
func (c *MusicClient) CurrentUser(ctx context.Context) (models.User, error) {
	return call(ctx, c.policy, "current user", c.transport.CurrentUser)
}

// Playlists returns every playlist of the current user.
func (c *MusicClient) Playlists(ctx context.Context) ([]models.Playlist, error) {
	return collectPages(ctx, c, "list playlists", c.limits.PlaylistGet, c.transport.PlaylistsPage)
}

// SavedTracks returns every track saved in the user's library.
func (c *MusicClient) SavedTracks(ctx context.Context) ([]models.Track, error) {
	return collectPages(ctx, c, "list saved tracks", c.limits.SavedTracksGet, c.transport.SavedTracksPage)
}

// PlaylistTracks returns every track of a playlist. Episodes and local files are not included.
func (c *MusicClient) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	fetch := func(ctx context.Context, limit, offset int) (Page[models.Track], error) {
		return c.transport.PlaylistTracksPage(ctx, playlistID, limit, offset)
	}
	return collectPages(ctx, c, "list playlist tracks", c.limits.PlaylistTrackGet, fetch)
}

// collectPages fetches the first page to learn the total, then walks the remaining offsets.
//
// Each page is retried on its own. Nothing is returned unless every page succeeds. The walk ends
// early only when the server returns no items at all; a page whose items were all filtered out
// does not stop it.
func collectPages[T any](
	ctx context.Context,
	c *MusicClient,
	op string,
	limit int,
	fetch func(ctx context.Context, limit, offset int) (Page[T], error),
) ([]T, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %s page size must be positive", shared.ErrInvalidConfig, op)
	}

	pageAt := func(offset int) (Page[T], error) {
		return call(ctx, c.policy, op, func(ctx context.Context) (Page[T], error) {
			return fetch(ctx, limit, offset)
		})
	}

	first, err := pageAt(0)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, max(first.Total, len(first.Items)))
	items = append(items, first.Items...)

	for offset := limit; offset < first.Total; offset += limit {
		page, err := pageAt(offset)
		if err != nil {
			return nil, err
		}
		if page.Fetched == 0 {
			break
		}
		items = append(items, page.Items...)
		c.logger.Debug("retrieved page", "op", op, "retrieved", min(offset+limit, first.Total), "total", first.Total)
	}

	return items, nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// AddToPlaylist appends uris in chunks and returns the snapshot token of the last chunk.
//
// An empty uris list makes no remote call and returns "".
func (c *MusicClient) AddToPlaylist(ctx context.Context, playlistID string, uris []string) (string, error) {
	var snapshot string
	added := 0
	for _, part := range chunk(uris, c.limits.PlaylistAdd) {
		token, err := call(ctx, c.policy, "add to playlist", func(ctx context.Context) (string, error) {
			return c.transport.AddTracks(ctx, playlistID, part)
		})
		if err != nil {
			return snapshot, err
		}
		snapshot = token
		added += len(part)
		c.logger.Debug("added tracks", "playlist", playlistID, "added", added, "total", len(uris))
	}
	return snapshot, nil
}

// RemoveFromPlaylist removes uris in chunks and returns the snapshot token of the last chunk.
func (c *MusicClient) RemoveFromPlaylist(ctx context.Context, playlistID string, uris []string) (string, error) {
	var snapshot string
	for _, part := range chunk(uris, c.limits.PlaylistRemove) {
		token, err := call(ctx, c.policy, "remove from playlist", func(ctx context.Context) (string, error) {
			return c.transport.RemoveTracks(ctx, playlistID, part)
		})
		if err != nil {
			return snapshot, err
		}
		snapshot = token
	}
	return snapshot, nil
}

// SaveTracks saves ids to the user's library in chunks.
func (c *MusicClient) SaveTracks(ctx context.Context, ids []string) error {
	for _, part := range chunk(ids, c.limits.LibrarySave) {
		if err := c.policy.Do(ctx, "save tracks", func(ctx context.Context) error {
			return c.transport.SaveTracks(ctx, part)
		}); err != nil {
			return err
		}
	}
	return nil
}

// CurrentlyPlaying returns the current playback, with a nil Track when nothing is playing.
func (c *MusicClient) CurrentlyPlaying(ctx context.Context) (*models.PlaybackState, error) {
	return call(ctx, c.policy, "currently playing", c.transport.CurrentlyPlaying)
}

// TogglePlay pauses active playback or resumes paused playback and reports which it did.
func (c *MusicClient) TogglePlay(ctx context.Context) (string, error) {
	state, err := call(ctx, c.policy, "playback state", c.transport.PlaybackState)
	if err != nil {
		return "", err
	}

	if state != nil && state.IsPlaying {
		if err := c.policy.Do(ctx, "pause", c.transport.Pause); err != nil {
			return "", err
		}
		return "paused", nil
	}

	if err := c.policy.Do(ctx, "resume", c.transport.Resume); err != nil {
		return "", err
	}
	return "resumed", nil
}

// Next skips to the next track.
func (c *MusicClient) Next(ctx context.Context) error {
	return c.policy.Do(ctx, "next", c.transport.Next)
}

// Previous skips to the previous track.
func (c *MusicClient) Previous(ctx context.Context) error {
	return c.policy.Do(ctx, "previous", c.transport.Previous)
}

// StartPlayback moves playback to the device named deviceName and plays uris shuffled.
//
// A single uri is played as a context (playlist, album); several are played as a track list.
func (c *MusicClient) StartPlayback(ctx context.Context, deviceName string, uris []string) error {
	devices, err := call(ctx, c.policy, "devices", c.transport.Devices)
	if err != nil {
		return err
	}

	var device *models.Device
	for i := range devices {
		if devices[i].Name == deviceName {
			device = &devices[i]
			break
		}
	}
	if device == nil {
		return fmt.Errorf("%w: %s", shared.ErrDeviceNotFound, deviceName)
	}

	state, err := call(ctx, c.policy, "playback state", c.transport.PlaybackState)
	if err != nil {
		return err
	}
	if state != nil && state.IsPlaying {
		if err := c.policy.Do(ctx, "pause", c.transport.Pause); err != nil {
			return err
		}
	}

	if err := c.policy.Do(ctx, "transfer", func(ctx context.Context) error {
		return c.transport.Transfer(ctx, device.ID)
	}); err != nil {
		return err
	}

	if err := c.policy.Do(ctx, "shuffle", func(ctx context.Context) error {
		return c.transport.Shuffle(ctx, true)
	}); err != nil {
		return err
	}

	opts := PlayOptions{DeviceID: device.ID}
	if len(uris) == 1 {
		opts.ContextURI = uris[0]
	} else {
		opts.URIs = uris
	}

	return c.policy.Do(ctx, "play", func(ctx context.Context) error {
		return c.transport.Play(ctx, opts)
	})
}
