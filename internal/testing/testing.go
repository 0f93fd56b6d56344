// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/mqtt-automations/internal/library"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/services"
	"github.com/desertthunder/mqtt-automations/internal/shared"
)

// FakeTransport is an in-memory [services.Transport].
//
// Playlist contents live in Tracks keyed by playlist id. Mutations update Tracks, bump the
// playlist's snapshot token and are recorded in Calls. Errors queued with FailNext are
// returned by the next calls to the named method, one per call.
type FakeTransport struct {
	mu sync.Mutex

	User      models.User
	Playlists []models.Playlist
	Tracks    map[string][]models.Track
	Saved     []models.Track
	Catalog   map[string]models.Track // by URI, used to resolve appended tracks
	Playback  *models.PlaybackState
	DeviceSet []models.Device

	Calls    []string
	Added    map[string][][]string // playlist id -> append calls
	Removed  map[string][][]string // playlist id -> remove calls
	SaveCall [][]string
	Played   []services.PlayOptions

	failures map[string][]error
	version  int
}

// NewFakeTransport creates an empty [FakeTransport] for user.
func NewFakeTransport(user string) *FakeTransport {
	return &FakeTransport{
		User:     models.User{ID: user, DisplayName: user},
		Tracks:   make(map[string][]models.Track),
		Catalog:  make(map[string]models.Track),
		Added:    make(map[string][][]string),
		Removed:  make(map[string][][]string),
		failures: make(map[string][]error),
	}
}

// AddPlaylist registers a playlist owned by the fake user and its tracks.
func (f *FakeTransport) AddPlaylist(id, name string, tracks ...models.Track) models.Playlist {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := models.Playlist{ID: id, Name: name, OwnerID: f.User.ID, SnapshotID: id + "-0", TrackCount: len(tracks)}
	f.Playlists = append(f.Playlists, p)
	f.Tracks[id] = append([]models.Track(nil), tracks...)
	for _, t := range tracks {
		f.Catalog[t.URI] = t
	}
	return p
}

// Register makes tracks resolvable by URI when they are appended to a playlist.
func (f *FakeTransport) Register(tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.Catalog[t.URI] = t
	}
}

// FailNext queues errs for the next calls to method.
func (f *FakeTransport) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

// CallCount returns how many times method was called.
func (f *FakeTransport) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// PlaylistTrackIDs returns the ids currently in playlist id.
func (f *FakeTransport) PlaylistTrackIDs(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, t := range f.Tracks[id] {
		ids = append(ids, t.ID)
	}
	return ids
}

// enter records the call and pops a queued failure. Callers hold mu.
func (f *FakeTransport) enter(method string) error {
	f.Calls = append(f.Calls, method)
	queue := f.failures[method]
	if len(queue) == 0 {
		return nil
	}
	f.failures[method] = queue[1:]
	return queue[0]
}

func (f *FakeTransport) playlistIndex(id string) int {
	for i := range f.Playlists {
		if f.Playlists[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *FakeTransport) bump(id string) string {
	f.version++
	i := f.playlistIndex(id)
	if i < 0 {
		return ""
	}
	f.Playlists[i].SnapshotID = fmt.Sprintf("%s-%d", id, f.version)
	f.Playlists[i].TrackCount = len(f.Tracks[id])
	return f.Playlists[i].SnapshotID
}

func page[T any](items []T, limit, offset int) services.Page[T] {
	result := services.Page[T]{Total: len(items)}
	if offset >= len(items) {
		return result
	}
	end := min(offset+limit, len(items))
	result.Items = append([]T(nil), items[offset:end]...)
	result.Fetched = len(result.Items)
	return result
}

func (f *FakeTransport) CurrentUser(context.Context) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CurrentUser"); err != nil {
		return models.User{}, err
	}
	return f.User, nil
}

func (f *FakeTransport) PlaylistsPage(_ context.Context, limit, offset int) (services.Page[models.Playlist], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PlaylistsPage"); err != nil {
		return services.Page[models.Playlist]{}, err
	}
	return page(f.Playlists, limit, offset), nil
}

func (f *FakeTransport) SavedTracksPage(_ context.Context, limit, offset int) (services.Page[models.Track], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SavedTracksPage"); err != nil {
		return services.Page[models.Track]{}, err
	}
	return page(f.Saved, limit, offset), nil
}

func (f *FakeTransport) PlaylistTracksPage(_ context.Context, playlistID string, limit, offset int) (services.Page[models.Track], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PlaylistTracksPage"); err != nil {
		return services.Page[models.Track]{}, err
	}
	if f.playlistIndex(playlistID) < 0 {
		return services.Page[models.Track]{}, &services.APIError{Status: http.StatusNotFound, Message: "playlist not found"}
	}
	return page(f.Tracks[playlistID], limit, offset), nil
}

func (f *FakeTransport) AddTracks(_ context.Context, playlistID string, uris []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddTracks"); err != nil {
		return "", err
	}
	for _, uri := range uris {
		track, ok := f.Catalog[uri]
		if !ok {
			track = models.Track{ID: uri[strings.LastIndexByte(uri, ':')+1:], URI: uri, Playable: true}
		}
		f.Tracks[playlistID] = append(f.Tracks[playlistID], track)
	}
	f.Added[playlistID] = append(f.Added[playlistID], append([]string(nil), uris...))
	return f.bump(playlistID), nil
}

func (f *FakeTransport) RemoveTracks(_ context.Context, playlistID string, uris []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RemoveTracks"); err != nil {
		return "", err
	}
	remove := make(map[string]bool, len(uris))
	for _, uri := range uris {
		remove[uri] = true
	}
	var kept []models.Track
	for _, t := range f.Tracks[playlistID] {
		if !remove[t.URI] {
			kept = append(kept, t)
		}
	}
	f.Tracks[playlistID] = kept
	f.Removed[playlistID] = append(f.Removed[playlistID], append([]string(nil), uris...))
	return f.bump(playlistID), nil
}

func (f *FakeTransport) SaveTracks(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SaveTracks"); err != nil {
		return err
	}
	f.SaveCall = append(f.SaveCall, append([]string(nil), ids...))
	for _, id := range ids {
		track := models.Track{ID: id, URI: "spotify:track:" + id, Playable: true}
		for _, t := range f.Catalog {
			if t.ID == id {
				track = t
				break
			}
		}
		f.Saved = append(f.Saved, track)
	}
	return nil
}

func (f *FakeTransport) CurrentlyPlaying(context.Context) (*models.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CurrentlyPlaying"); err != nil {
		return nil, err
	}
	if f.Playback == nil {
		return &models.PlaybackState{}, nil
	}
	state := *f.Playback
	return &state, nil
}

func (f *FakeTransport) PlaybackState(context.Context) (*models.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PlaybackState"); err != nil {
		return nil, err
	}
	if f.Playback == nil {
		return &models.PlaybackState{}, nil
	}
	state := *f.Playback
	return &state, nil
}

func (f *FakeTransport) Devices(context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Devices"); err != nil {
		return nil, err
	}
	return append([]models.Device(nil), f.DeviceSet...), nil
}

func (f *FakeTransport) setPlaying(method string, playing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(method); err != nil {
		return err
	}
	if f.Playback == nil {
		f.Playback = &models.PlaybackState{}
	}
	f.Playback.IsPlaying = playing
	return nil
}

func (f *FakeTransport) Transfer(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Transfer"); err != nil {
		return err
	}
	if f.Playback == nil {
		f.Playback = &models.PlaybackState{}
	}
	f.Playback.DeviceID = deviceID
	return nil
}

func (f *FakeTransport) Pause(context.Context) error  { return f.setPlaying("Pause", false) }
func (f *FakeTransport) Resume(context.Context) error { return f.setPlaying("Resume", true) }
func (f *FakeTransport) Next(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Next")
}

func (f *FakeTransport) Previous(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Previous")
}

func (f *FakeTransport) Shuffle(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Shuffle")
}

func (f *FakeTransport) Play(_ context.Context, opts services.PlayOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Play"); err != nil {
		return err
	}
	f.Played = append(f.Played, opts)
	if f.Playback == nil {
		f.Playback = &models.PlaybackState{}
	}
	f.Playback.IsPlaying = true
	return nil
}

// FakeTagStore is a [library.TagStore] that keeps tags as JSON inside the file itself, so tags
// follow a file when it is moved. Files with other contents read as untagged.
type FakeTagStore struct {
	mu       sync.Mutex
	Writes   map[string]int
	WriteErr error
	FailOn   map[string]error // per-path write errors

	OnRead  func(path string) // called before each read
	OnWrite func(path string) // called after each successful write
}

// NewFakeTagStore creates an empty [FakeTagStore].
func NewFakeTagStore() *FakeTagStore {
	return &FakeTagStore{
		Writes: make(map[string]int),
		FailOn: make(map[string]error),
	}
}

// Put creates a file at path holding tags.
func (s *FakeTagStore) Put(t *testing.T, path string, tags library.Tags) {
	t.Helper()
	if err := writeTags(path, tags); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func writeTags(path string, tags library.Tags) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readTags(path string) (library.Tags, error) {
	var tags library.Tags
	data, err := os.ReadFile(path)
	if err != nil {
		return tags, fmt.Errorf("%w: %w", shared.ErrTagRead, err)
	}
	if json.Unmarshal(data, &tags) != nil {
		return library.Tags{}, nil
	}
	return tags, nil
}

func (s *FakeTagStore) Read(path string) (library.Tags, error) {
	if s.OnRead != nil {
		s.OnRead(path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTags(path)
}

func (s *FakeTagStore) WriteComment(path, comment string) error {
	if err := s.writeComment(path, comment); err != nil {
		return err
	}
	if s.OnWrite != nil {
		s.OnWrite(path)
	}
	return nil
}

func (s *FakeTagStore) writeComment(path, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	if err := s.FailOn[path]; err != nil {
		return err
	}
	tags, err := readTags(path)
	if err != nil {
		return err
	}
	tags.Comment = comment
	if err := writeTags(path, tags); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrTagWrite, err)
	}
	s.Writes[path]++
	return nil
}

// Comment returns the comment stored in the file at path, or "" when it cannot be read.
func (s *FakeTagStore) Comment(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags, _ := readTags(path)
	return tags.Comment
}

// Message is a published bus message.
type Message struct {
	Topic   string
	Payload string
}

// FakePublisher records published messages.
type FakePublisher struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (p *FakePublisher) Publish(topic, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Messages = append(p.Messages, Message{Topic: topic, Payload: payload})
	return nil
}

// On returns the payloads published to topic.
func (p *FakePublisher) On(topic string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var payloads []string
	for _, m := range p.Messages {
		if m.Topic == topic {
			payloads = append(payloads, m.Payload)
		}
	}
	return payloads
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File still exists: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
