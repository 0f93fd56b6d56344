package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	MQTT        MQTTConfig        `toml:"mqtt"`
	Spotify     SpotifyConfig     `toml:"spotify"`
	Directories DirectoriesConfig `toml:"directories"`
	Playlists   PlaylistsConfig   `toml:"playlists"`
	Presets     []PlaybackPreset  `toml:"presets"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	ClientID       string   `toml:"client_id"`
	ReconnectDelay Duration `toml:"reconnect_delay"`
}

// Broker returns the tcp:// URL of the configured broker.
func (c MQTTConfig) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// SpotifyConfig contains Spotify API credentials and client tuning.
type SpotifyConfig struct {
	ClientID     string        `toml:"client_id"`
	ClientSecret string        `toml:"client_secret"`
	RedirectURI  string        `toml:"redirect_uri"`
	TokenFile    string        `toml:"token_file"`
	Market       string        `toml:"market"`
	Limits       SpotifyLimits `toml:"limits"`
	Retry        RetryConfig   `toml:"retry"`
}

// SpotifyLimits bounds page sizes and mutation chunk sizes per operation.
type SpotifyLimits struct {
	SavedTracksGet   int `toml:"saved_tracks_get"`
	PlaylistGet      int `toml:"playlist_get"`
	PlaylistTrackGet int `toml:"playlist_track_get"`
	PlaylistAdd      int `toml:"playlist_add"`
	PlaylistRemove   int `toml:"playlist_remove"`
	LibrarySave      int `toml:"library_save"`
}

// RetryConfig configures the remote call retry policy.
type RetryConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	BaseDelay         Duration `toml:"base_delay"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// DirectoriesConfig contains the local music library layout.
type DirectoriesConfig struct {
	Downloads string `toml:"downloads"` // freshly downloaded, untagged files
	Processed string `toml:"processed"` // fully processed archive
	KeyMixed  string `toml:"key_mixed"` // key-mixed archive
}

// PlaylistsConfig names the download queue and playlists excluded from reconciliation.
type PlaylistsConfig struct {
	DownloadQueue string   `toml:"download_queue"`
	Skip          []string `toml:"skip"`
}

// PlaybackPreset maps a user name to a device and playback context.
type PlaybackPreset struct {
	User   string   `toml:"user"`
	Device string   `toml:"device"`
	URIs   []string `toml:"uris"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains status server settings. A zero port disables the server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so it can be written as "5s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Preset returns the playback preset for user.
func (c *Config) Preset(user string) (PlaybackPreset, bool) {
	for _, p := range c.Presets {
		if p.User == user {
			return p, true
		}
	}
	return PlaybackPreset{}, false
}

// Validate checks the settings the bridge cannot run without.
func (c *Config) Validate() error {
	var problems []string

	l := c.Spotify.Limits
	for _, lim := range []struct {
		name  string
		value int
	}{
		{"saved_tracks_get", l.SavedTracksGet},
		{"playlist_get", l.PlaylistGet},
		{"playlist_track_get", l.PlaylistTrackGet},
		{"playlist_add", l.PlaylistAdd},
		{"playlist_remove", l.PlaylistRemove},
		{"library_save", l.LibrarySave},
	} {
		if lim.value <= 0 {
			problems = append(problems, fmt.Sprintf("spotify.limits.%s must be positive", lim.name))
		}
	}

	if c.Spotify.Retry.MaxAttempts <= 0 {
		problems = append(problems, "spotify.retry.max_attempts must be positive")
	}
	if c.Playlists.DownloadQueue == "" {
		problems = append(problems, "playlists.download_queue is required")
	}
	if c.Directories.Downloads == "" || c.Directories.Processed == "" || c.Directories.KeyMixed == "" {
		problems = append(problems, "directories.downloads, processed and key_mixed are required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Presets = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
