package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/jmoiron/sqlx"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Start and Get", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := models.NewRun("SpotifyControl", "next")

		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}

		retrieved, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if retrieved.Topic != "SpotifyControl" || retrieved.Payload != "next" {
			t.Errorf("unexpected run %+v", retrieved)
		}
		if retrieved.Status != models.RunRunning {
			t.Errorf("expected status %s, got %s", models.RunRunning, retrieved.Status)
		}
		if retrieved.FinishedAt != nil {
			t.Error("expected running run to have no finish time")
		}
	})

	t.Run("Finish", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := models.NewRun("PopulateSpotifyDownloadPlaylist", "")
		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}

		run.Finish("", errors.New("boom"))
		if err := repo.Finish(ctx, run); err != nil {
			t.Fatalf("failed to finish run: %v", err)
		}

		retrieved, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if retrieved.Status != models.RunError || retrieved.Error != "boom" {
			t.Errorf("expected failed run, got %+v", retrieved)
		}
		if retrieved.FinishedAt == nil {
			t.Error("expected finish time to be stored")
		}
	})

	t.Run("Recent", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

		for i, topic := range []string{"first", "second", "third"} {
			run := models.NewRun(topic, "")
			run.StartedAt = base.Add(time.Duration(i) * time.Minute)
			if err := repo.Start(ctx, run); err != nil {
				t.Fatalf("failed to start run: %v", err)
			}
		}

		runs, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].Topic != "third" || runs[1].Topic != "second" {
			t.Errorf("expected newest first, got %s, %s", runs[0].Topic, runs[1].Topic)
		}

		all, err := repo.Recent(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected default limit to return all 3 runs, got %d", len(all))
		}
	})

	t.Run("Recent empty", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		runs, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if runs == nil || len(runs) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", runs)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := models.NewRun("PopulateSpotifyDownloadPlaylist", "")
		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}

		stats := &models.ReconcileStats{RunID: run.ID, Candidates: 3, Added: 2, Processed: 1, Downloaded: 4}
		if err := repo.SaveStats(ctx, stats); err != nil {
			t.Fatalf("failed to save stats: %v", err)
		}

		stats.Added = 3
		if err := repo.SaveStats(ctx, stats); err != nil {
			t.Fatalf("failed to replace stats: %v", err)
		}

		retrieved, err := repo.Stats(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if *retrieved != *stats {
			t.Errorf("expected %+v, got %+v", *stats, *retrieved)
		}
	})
}

func TestRunRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Start", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))
			run := models.NewRun("", "payload")

			if err := repo.Start(ctx, run); !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})

		t.Run("DuplicateID", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))
			run := models.NewRun("SpotifyControl", "next")

			if err := repo.Start(ctx, run); err != nil {
				t.Fatalf("failed to start run: %v", err)
			}
			if err := repo.Start(ctx, run); err == nil {
				t.Fatal("expected error when inserting a duplicate run id")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))

			if _, err := repo.Get(ctx, "nonexistent-id"); !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
		})
	})

	t.Run("Finish", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))
			run := models.NewRun("SpotifyControl", "next")
			run.Finish("skipped next", nil)

			if err := repo.Finish(ctx, run); !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
		})
	})

	t.Run("SaveStats", func(t *testing.T) {
		t.Run("UnknownRun", func(t *testing.T) {
			repo := NewRunRepository(setupTestDB(t))
			stats := &models.ReconcileStats{RunID: "missing"}

			if err := repo.SaveStats(ctx, stats); err == nil {
				t.Fatal("expected foreign key error")
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)
		db.Close()

		if _, err := repo.Recent(ctx, 5); err == nil {
			t.Fatal("expected error on closed database")
		}
	})
}
