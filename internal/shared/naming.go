package shared

import "strings"

const invalidFilenameChars = "\"<>|:*?\\/"

// FilenameKey builds the "{artists} - {title}" key used to match a remote track
// against a local file that has not been tagged with its remote id yet.
//
// Characters that are not allowed in filenames are replaced by "_".
func FilenameKey(artists []string, title string) string {
	return SanitizeFilename(strings.Join(artists, ", ") + " - " + title)
}

// SanitizeFilename replaces filesystem-invalid characters (including control characters) with "_".
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(invalidFilenameChars, r) {
			return '_'
		}
		return r
	}, name)
}

// FirstArtist returns the first performer stored in a tag value.
//
// ID3v2.4 separates multiple performers with NUL bytes.
func FirstArtist(artist string) string {
	if i := strings.IndexByte(artist, 0); i >= 0 {
		return artist[:i]
	}
	return artist
}
