package library

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/dhowden/tag"
)

// Tags is the subset of audio metadata the bridge relies on.
type Tags struct {
	Title   string
	Artist  string // lead performer frame, possibly NUL-separated
	Comment string // comma-separated remote track ids
}

// Key returns the filename key built from the first artist and the title.
func (t Tags) Key() string {
	return shared.FilenameKey([]string{shared.FirstArtist(t.Artist)}, t.Title)
}

// IDs splits the comment into its non-empty track ids.
func (t Tags) IDs() []string {
	return splitIDs(t.Comment)
}

func splitIDs(comment string) []string {
	var ids []string
	for _, part := range strings.Split(comment, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// TagStore reads and writes audio file tags.
//
// Implementations must not hold the file open after a call returns.
type TagStore interface {
	Read(path string) (Tags, error)
	WriteComment(path, comment string) error
}

// ID3Store is a [TagStore] for MP3 files.
type ID3Store struct{}

// NewID3Store creates an [ID3Store].
func NewID3Store() *ID3Store {
	return &ID3Store{}
}

// Read returns the tags of the file at path. A file without tags yields empty [Tags].
func (s *ID3Store) Read(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, fmt.Errorf("%w: %s: %w", shared.ErrTagRead, path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return Tags{}, nil
	}
	if err != nil {
		return Tags{}, fmt.Errorf("%w: %s: %w", shared.ErrTagRead, path, err)
	}

	return Tags{
		Title:   m.Title(),
		Artist:  m.Artist(),
		Comment: m.Comment(),
	}, nil
}

// WriteComment replaces every comment frame of the file with a single "eng" comment.
func (s *ID3Store) WriteComment(path, comment string) error {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", shared.ErrTagWrite, path, err)
	}
	defer t.Close()

	t.DeleteFrames(t.CommonID("Comments"))
	t.AddCommentFrame(id3v2.CommentFrame{
		Encoding: id3v2.EncodingUTF8,
		Language: "eng",
		Text:     comment,
	})

	if err := t.Save(); err != nil {
		return fmt.Errorf("%w: %s: %w", shared.ErrTagWrite, path, err)
	}
	return nil
}
