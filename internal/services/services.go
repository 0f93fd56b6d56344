package services

import (
	"context"

	"github.com/desertthunder/mqtt-automations/internal/models"
)

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items   []T
	Total   int
	Fetched int // items the server returned, including any dropped from Items
}

// PlayOptions selects what to play and where.
//
// A single context URI (playlist, album) takes precedence over URIs.
type PlayOptions struct {
	DeviceID   string
	ContextURI string
	URIs       []string
}

// Transport defines the remote calls the bridge needs. Implementations issue exactly one request per call
// and report failures as errors that [Classify] understands.
type Transport interface {
	CurrentUser(ctx context.Context) (models.User, error)
	PlaylistsPage(ctx context.Context, limit, offset int) (Page[models.Playlist], error)
	SavedTracksPage(ctx context.Context, limit, offset int) (Page[models.Track], error)
	PlaylistTracksPage(ctx context.Context, playlistID string, limit, offset int) (Page[models.Track], error)

	// AddTracks appends uris and returns the playlist's new snapshot token.
	AddTracks(ctx context.Context, playlistID string, uris []string) (string, error)
	// RemoveTracks removes every occurrence of uris and returns the new snapshot token.
	RemoveTracks(ctx context.Context, playlistID string, uris []string) (string, error)
	SaveTracks(ctx context.Context, ids []string) error

	CurrentlyPlaying(ctx context.Context) (*models.PlaybackState, error)
	PlaybackState(ctx context.Context) (*models.PlaybackState, error)
	Devices(ctx context.Context) ([]models.Device, error)
	Transfer(ctx context.Context, deviceID string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Shuffle(ctx context.Context, on bool) error
	Play(ctx context.Context, opts PlayOptions) error
}
