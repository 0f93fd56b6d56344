package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Remote API errors
	ErrRetriesExhausted = fmt.Errorf("retries exhausted")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrDeviceNotFound   = fmt.Errorf("device not found")

	// Local library errors
	ErrTagRead      = fmt.Errorf("failed to read tags")
	ErrTagWrite     = fmt.Errorf("failed to write tags")
	ErrPostDownload = fmt.Errorf("failed to process downloaded tracks")

	// Command errors
	ErrUnknownCommand = fmt.Errorf("unknown command")
	ErrUnknownPreset  = fmt.Errorf("unknown playback preset")
	ErrNotConnected   = fmt.Errorf("message bus not connected")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
