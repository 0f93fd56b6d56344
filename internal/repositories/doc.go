// Package repositories implements SQLite persistence for the bridge's run history.
//
// Every command handled from the message bus is recorded as a [models.Run]: it is inserted as
// running when the handler starts and updated with its result or error when it finishes.
// Reconciliation workflows additionally store their counters as [models.ReconcileStats].
//
// Key Implementations:
//   - [RunRepository] : run history with recent-first listing and per-run statistics
//
// Repositories use sqlx named statements against the schema applied by [shared.RunMigrations].
package repositories
