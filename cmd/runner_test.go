package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/repositories"
	"github.com/desertthunder/mqtt-automations/internal/services"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/desertthunder/mqtt-automations/internal/tasks"
	tu "github.com/desertthunder/mqtt-automations/internal/testing"
)

// limitedWriter accepts n writes and fails every write after that.
type limitedWriter struct {
	n   int
	buf bytes.Buffer
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("write limit reached")
	}
	w.n--
	return w.buf.Write(p)
}

type env struct {
	dir     string
	config  string
	db      string
	fake    *tu.FakeTransport
	output  *bytes.Buffer
	runner  *Runner
	queueID string
}

// newEnv writes a config file into a temp dir and builds a runner backed by a fake remote.
func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"downloads", "processed", "key_mixed"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", sub, err)
		}
	}

	e := &env{
		dir:     dir,
		config:  filepath.Join(dir, "config.toml"),
		db:      filepath.Join(dir, "runs.db"),
		fake:    tu.NewFakeTransport("me"),
		output:  &bytes.Buffer{},
		queueID: "queue",
	}
	e.fake.AddPlaylist(e.queueID, "To Download")

	content := fmt.Sprintf(`
[directories]
downloads = %q
processed = %q
key_mixed = %q

[playlists]
download_queue = %q

[database]
path = %q
%s`, filepath.Join(dir, "downloads"), filepath.Join(dir, "processed"), filepath.Join(dir, "key_mixed"),
		e.queueID, e.db, extra)
	if err := os.WriteFile(e.config, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	logger := shared.NewLogger(io.Discard)
	policy := &services.Policy{MaxAttempts: 1, Sleep: func(context.Context, time.Duration) error { return nil }}
	e.runner = NewRunner(RunnerOpts{
		Remote: services.NewMusicClient(e.fake, policy, shared.DefaultConfig().Spotify.Limits, logger),
		Tags:   tu.NewFakeTagStore(),
		Logger: logger,
		Output: e.output,
	})
	return e
}

func (e *env) run(t *testing.T, args ...string) error {
	t.Helper()
	argv := append([]string{"mqtt-automations", "--config", e.config}, args...)
	return newApp(e.runner).Run(context.Background(), argv)
}

func track(id, artist, name string) models.Track {
	return models.Track{ID: id, Name: name, Artists: []string{artist}, URI: "spotify:track:" + id, Playable: true}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			tags := tu.NewFakeTagStore()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Tags:       tags,
				Logger:     logger,
				Output:     output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.tags != tags {
				t.Error("expected tags to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.tags == nil {
				t.Error("expected default tag store")
			}
			if runner.remote != nil {
				t.Error("expected remote to be built lazily")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &limitedWriter{n: 1}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("writePlainln surrounds text with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("done"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "\ndone\n" {
				t.Errorf("expected %q, got %q", "\ndone\n", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writePlain("test"); err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		var names []string
		for _, cmd := range runner.register() {
			names = append(names, cmd.Name)
		}

		want := []string{"serve", "reconcile", "process-downloads", "history", "setup"}
		if !slices.Equal(names, want) {
			t.Errorf("expected %v, got %v", want, names)
		}
	})

	t.Run("watch prints every update", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		progress, finish := runner.progress(false)
		progress <- tasks.ProgressUpdate{Phase: tasks.FetchSaved, Message: "Fetching saved tracks..."}
		progress <- tasks.ProgressUpdate{Phase: tasks.FetchQueue, Message: "Fetching download playlist..."}
		finish()

		if lines := strings.Count(output.String(), "\n"); lines != 2 {
			t.Errorf("expected 2 lines, got %d: %q", lines, output.String())
		}
	})
}

func TestBefore(t *testing.T) {
	t.Run("missing config keeps defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		path := filepath.Join(t.TempDir(), "missing.toml")

		if err := newApp(runner).Run(context.Background(), []string{"mqtt-automations", "--config", path, "setup"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.configPath != path {
			t.Errorf("expected config path %s, got %s", path, runner.configPath)
		}
		if runner.config.MQTT.Port != 1883 {
			t.Error("expected default config")
		}
	})

	t.Run("invalid config fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[mqtt\nport = "), 0644); err != nil {
			t.Fatal(err)
		}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		err := newApp(runner).Run(context.Background(), []string{"mqtt-automations", "--config", path, "history"})
		if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("loads file and debug flag", func(t *testing.T) {
		e := newEnv(t, "\n[logging]\nlevel = \"warn\"\n")

		if err := e.run(t, "--debug", "setup"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.runner.config.Playlists.DownloadQueue != e.queueID {
			t.Error("expected config to be loaded from file")
		}
		if e.runner.logger.GetLevel().String() != "debug" {
			t.Errorf("expected debug level, got %s", e.runner.logger.GetLevel())
		}
	})
}

func TestReconcileCommand(t *testing.T) {
	t.Run("populate adds missing tracks", func(t *testing.T) {
		e := newEnv(t, "")
		e.fake.Saved = []models.Track{track("A", "Alpha", "One")}

		if err := e.run(t, "reconcile", "--quiet"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := e.fake.PlaylistTrackIDs(e.queueID); !slices.Equal(got, []string{"A"}) {
			t.Errorf("expected A to be queued, got %v", got)
		}
		out := e.output.String()
		for _, want := range []string{"No downloaded tracks to process.", "Added 1 tracks to your download playlist."} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("skip downloads as JSON", func(t *testing.T) {
		e := newEnv(t, "")
		e.fake.Saved = []models.Track{track("A", "Alpha", "One"), track("B", "Beta", "Two")}

		if err := e.run(t, "reconcile", "--skip-downloads", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var result tasks.ReconcileResult
		if err := json.Unmarshal(e.output.Bytes(), &result); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", e.output.String(), err)
		}
		if result.Added != 2 {
			t.Errorf("expected 2 added, got %d", result.Added)
		}
	})

	t.Run("progress is printed", func(t *testing.T) {
		e := newEnv(t, "")

		if err := e.run(t, "reconcile", "--skip-downloads"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(e.output.String(), "Fetching saved tracks...") {
			t.Errorf("expected progress output, got:\n%s", e.output.String())
		}
	})

	t.Run("invalid config is rejected before any remote call", func(t *testing.T) {
		e := newEnv(t, "")
		e.runner.config.Playlists.DownloadQueue = ""

		err := e.runner.Reconcile(context.Background(), newApp(e.runner))
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
		if len(e.fake.Calls) != 0 {
			t.Errorf("expected no remote calls, got %v", e.fake.Calls)
		}
	})

	t.Run("process downloads", func(t *testing.T) {
		e := newEnv(t, "")

		if err := e.run(t, "process-downloads", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var result tasks.ProcessResult
		if err := json.Unmarshal(e.output.Bytes(), &result); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", e.output.String(), err)
		}
		if result.Downloaded != 0 || len(e.fake.Calls) != 0 {
			t.Errorf("expected nothing to process, got %+v and calls %v", result, e.fake.Calls)
		}
	})
}

func seedRuns(t *testing.T, path string) *models.Run {
	t.Helper()
	ctx := context.Background()

	db, err := shared.OpenDatabase(ctx, shared.DatabaseConfig{Path: path})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	repo := repositories.NewRunRepository(db)

	control := models.NewRun("SpotifyControl", "next")
	control.StartedAt = control.StartedAt.Add(-time.Minute)
	populate := models.NewRun("PopulateSpotifyDownloadPlaylist", "")
	for _, run := range []*models.Run{control, populate} {
		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
	}

	control.Finish("skipped to next track", nil)
	populate.Finish("Processed 1/1 downloaded tracks.\nAdded 2 tracks to your download playlist.", nil)
	for _, run := range []*models.Run{control, populate} {
		if err := repo.Finish(ctx, run); err != nil {
			t.Fatalf("failed to finish run: %v", err)
		}
	}
	if err := repo.SaveStats(ctx, &models.ReconcileStats{RunID: populate.ID, Added: 2, Candidates: 2, Processed: 1, Downloaded: 1}); err != nil {
		t.Fatalf("failed to save stats: %v", err)
	}
	return populate
}

func TestHistoryCommand(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		e := newEnv(t, "")
		seedRuns(t, e.db)

		if err := e.run(t, "history"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := e.output.String()
		if !strings.Contains(out, "PopulateSpotifyDownloadPlaylist") || !strings.Contains(out, "skipped to next track") {
			t.Errorf("unexpected table:\n%s", out)
		}
		if strings.Index(out, "PopulateSpotifyDownloadPlaylist") > strings.Index(out, "SpotifyControl") {
			t.Error("expected newest run first")
		}
	})

	t.Run("json with limit", func(t *testing.T) {
		e := newEnv(t, "")
		populate := seedRuns(t, e.db)

		if err := e.run(t, "history", "--json", "--limit", "1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var runs []models.Run
		if err := json.Unmarshal(e.output.Bytes(), &runs); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != populate.ID {
			t.Errorf("expected only the newest run, got %+v", runs)
		}
	})

	t.Run("csv export", func(t *testing.T) {
		e := newEnv(t, "")
		seedRuns(t, e.db)
		out := filepath.Join(e.dir, "runs.csv")

		if err := e.run(t, "history", "--csv", out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if content := tu.MustReadFile(t, out); strings.Count(content, "\n") < 3 {
			t.Errorf("expected header and two rows, got %q", content)
		}
	})

	t.Run("show with stats", func(t *testing.T) {
		e := newEnv(t, "")
		populate := seedRuns(t, e.db)

		if err := e.run(t, "history", "show", populate.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := e.output.String()
		for _, want := range []string{populate.ID, "Added 2 tracks", "Added to queue    2"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("show unknown run", func(t *testing.T) {
		e := newEnv(t, "")
		seedRuns(t, e.db)

		if err := e.run(t, "history", "show", "nope"); !errors.Is(err, repositories.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("show requires an id", func(t *testing.T) {
		e := newEnv(t, "")

		if err := e.run(t, "history", "show"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("without database", func(t *testing.T) {
		e := newEnv(t, "")
		e.runner.config.Database.Path = ""

		err := e.runner.History(context.Background(), newApp(e.runner))
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		app := func() error {
			return newApp(runner).Run(context.Background(), []string{"mqtt-automations", "-c", path, "setup", "config"})
		}

		if err := app(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("expected written config to load, got %v", err)
		}

		if err := app(); err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected existing file error, got %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		e := newEnv(t, "")

		if err := e.run(t, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, e.db)
		if !strings.Contains(e.output.String(), "Database ready") {
			t.Errorf("unexpected output %q", e.output.String())
		}
	})
}
