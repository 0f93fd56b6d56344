// Spotify Web API implementation of [Transport] backed by github.com/zmb3/spotify/v2.
package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/zmb3/spotify/v2"
)

// SpotifyTransport implements [Transport] with a [spotify.Client].
type SpotifyTransport struct {
	client *spotify.Client
	market string
}

// NewSpotifyTransport creates a [SpotifyTransport] over an authorised HTTP client.
//
// Responses with status 429 are turned into [APIError] values carrying the Retry-After delay.
func NewSpotifyTransport(httpClient *http.Client, market string, opts ...spotify.ClientOption) *SpotifyTransport {
	return &SpotifyTransport{
		client: spotify.New(withRateLimitDetection(httpClient), opts...),
		market: market,
	}
}

// rateLimitTransport converts 429 responses into errors before the SDK decodes them.
type rateLimitTransport struct {
	base http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}

	retryAfter := parseRetryAfter(resp)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return nil, &APIError{Status: http.StatusTooManyRequests, Message: "too many requests", RetryAfter: retryAfter}
}

func withRateLimitDetection(client *http.Client) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = &rateLimitTransport{base: base}
	return &wrapped
}

// mapError converts SDK errors into [APIError] so [Classify] can tag them.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var spErr spotify.Error
	if errors.As(err, &spErr) {
		return &APIError{Status: spErr.Status, Message: spErr.Message}
	}

	var spErrPtr *spotify.Error
	if errors.As(err, &spErrPtr) && spErrPtr != nil {
		return &APIError{Status: spErrPtr.Status, Message: spErrPtr.Message}
	}

	return err
}

func toTrack(ft *spotify.FullTrack) models.Track {
	track := models.Track{
		ID:       string(ft.ID),
		Name:     ft.Name,
		URI:      string(ft.URI),
		Playable: ft.IsPlayable == nil || *ft.IsPlayable,
	}

	for _, artist := range ft.Artists {
		track.Artists = append(track.Artists, artist.Name)
	}

	if ft.LinkedFrom != nil {
		track.Linked = &models.LinkedTrack{
			ID:  string(ft.LinkedFrom.ID),
			URI: string(ft.LinkedFrom.URI),
		}
	}

	return track
}

// trackID extracts the id from "spotify:track:{id}". Bare ids are returned unchanged.
func trackID(uri string) spotify.ID {
	if i := strings.LastIndexByte(uri, ':'); i >= 0 {
		return spotify.ID(uri[i+1:])
	}
	return spotify.ID(uri)
}

func trackIDs(uris []string) []spotify.ID {
	ids := make([]spotify.ID, 0, len(uris))
	for _, uri := range uris {
		ids = append(ids, trackID(uri))
	}
	return ids
}

func (s *SpotifyTransport) CurrentUser(ctx context.Context) (models.User, error) {
	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return models.User{}, mapError(err)
	}
	return models.User{ID: user.ID, DisplayName: user.DisplayName}, nil
}

func (s *SpotifyTransport) PlaylistsPage(ctx context.Context, limit, offset int) (Page[models.Playlist], error) {
	page, err := s.client.CurrentUsersPlaylists(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return Page[models.Playlist]{}, mapError(err)
	}

	result := Page[models.Playlist]{Total: int(page.Total), Fetched: len(page.Playlists)}
	for _, p := range page.Playlists {
		result.Items = append(result.Items, models.Playlist{
			ID:            string(p.ID),
			Name:          p.Name,
			OwnerID:       p.Owner.ID,
			Collaborative: p.Collaborative,
			SnapshotID:    p.SnapshotID,
			TrackCount:    int(p.Tracks.Total),
		})
	}
	return result, nil
}

func (s *SpotifyTransport) SavedTracksPage(ctx context.Context, limit, offset int) (Page[models.Track], error) {
	opts := []spotify.RequestOption{spotify.Limit(limit), spotify.Offset(offset)}
	if s.market != "" {
		opts = append(opts, spotify.Market(s.market))
	}

	page, err := s.client.CurrentUsersTracks(ctx, opts...)
	if err != nil {
		return Page[models.Track]{}, mapError(err)
	}

	result := Page[models.Track]{Total: int(page.Total), Fetched: len(page.Tracks)}
	for i := range page.Tracks {
		result.Items = append(result.Items, toTrack(&page.Tracks[i].FullTrack))
	}
	return result, nil
}

func (s *SpotifyTransport) PlaylistTracksPage(ctx context.Context, playlistID string, limit, offset int) (Page[models.Track], error) {
	opts := []spotify.RequestOption{spotify.Limit(limit), spotify.Offset(offset)}
	if s.market != "" {
		opts = append(opts, spotify.Market(s.market))
	}

	page, err := s.client.GetPlaylistItems(ctx, spotify.ID(playlistID), opts...)
	if err != nil {
		return Page[models.Track]{}, mapError(err)
	}

	result := Page[models.Track]{Total: int(page.Total), Fetched: len(page.Items)}
	for i := range page.Items {
		if ft := page.Items[i].Track.Track; ft != nil {
			result.Items = append(result.Items, toTrack(ft))
		}
	}
	return result, nil
}

func (s *SpotifyTransport) AddTracks(ctx context.Context, playlistID string, uris []string) (string, error) {
	snapshot, err := s.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), trackIDs(uris)...)
	return snapshot, mapError(err)
}

func (s *SpotifyTransport) RemoveTracks(ctx context.Context, playlistID string, uris []string) (string, error) {
	snapshot, err := s.client.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), trackIDs(uris)...)
	return snapshot, mapError(err)
}

func (s *SpotifyTransport) SaveTracks(ctx context.Context, ids []string) error {
	return mapError(s.client.AddTracksToLibrary(ctx, trackIDs(ids)...))
}

func (s *SpotifyTransport) CurrentlyPlaying(ctx context.Context) (*models.PlaybackState, error) {
	var opts []spotify.RequestOption
	if s.market != "" {
		opts = append(opts, spotify.Market(s.market))
	}

	cp, err := s.client.PlayerCurrentlyPlaying(ctx, opts...)
	if err != nil {
		return nil, mapError(err)
	}

	state := &models.PlaybackState{}
	if cp == nil {
		return state, nil
	}
	state.IsPlaying = cp.Playing
	if cp.Item != nil {
		track := toTrack(cp.Item)
		state.Track = &track
	}
	return state, nil
}

func (s *SpotifyTransport) PlaybackState(ctx context.Context) (*models.PlaybackState, error) {
	ps, err := s.client.PlayerState(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	state := &models.PlaybackState{}
	if ps == nil {
		return state, nil
	}
	state.IsPlaying = ps.Playing
	state.DeviceID = string(ps.Device.ID)
	if ps.Item != nil {
		track := toTrack(ps.Item)
		state.Track = &track
	}
	return state, nil
}

func (s *SpotifyTransport) Devices(ctx context.Context) ([]models.Device, error) {
	devices, err := s.client.PlayerDevices(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	result := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, models.Device{
			ID:       string(d.ID),
			Name:     d.Name,
			Type:     d.Type,
			IsActive: d.Active,
		})
	}
	return result, nil
}

func (s *SpotifyTransport) Transfer(ctx context.Context, deviceID string) error {
	return mapError(s.client.TransferPlayback(ctx, spotify.ID(deviceID), false))
}

func (s *SpotifyTransport) Pause(ctx context.Context) error {
	return mapError(s.client.Pause(ctx))
}

func (s *SpotifyTransport) Resume(ctx context.Context) error {
	return mapError(s.client.Play(ctx))
}

func (s *SpotifyTransport) Next(ctx context.Context) error {
	return mapError(s.client.Next(ctx))
}

func (s *SpotifyTransport) Previous(ctx context.Context) error {
	return mapError(s.client.Previous(ctx))
}

func (s *SpotifyTransport) Shuffle(ctx context.Context, on bool) error {
	return mapError(s.client.Shuffle(ctx, on))
}

func (s *SpotifyTransport) Play(ctx context.Context, opts PlayOptions) error {
	playOpts := &spotify.PlayOptions{}
	if opts.DeviceID != "" {
		id := spotify.ID(opts.DeviceID)
		playOpts.DeviceID = &id
	}
	if opts.ContextURI != "" {
		uri := spotify.URI(opts.ContextURI)
		playOpts.PlaybackContext = &uri
	}
	for _, u := range opts.URIs {
		playOpts.URIs = append(playOpts.URIs, spotify.URI(u))
	}
	return mapError(s.client.PlayOpt(ctx, playOpts))
}
