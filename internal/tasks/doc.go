// Package tasks runs the bridge's commands against the remote account and the local library.
//
// # Core Operations
//
//  1. [Engine.Reconcile] : Populate the download queue
//     - Collects saved tracks and the tracks of every owned, non-collaborative playlist whose
//     cached copy has not been reconciled yet
//     - Indexes the processed and key-mixed directories by the track ids in their comment tags
//     - Skips tracks found by id, stamps tracks found by linked id or by filename, drops
//     unplayable tracks and appends the rest to the download queue unless already queued
//
//  2. [Engine.ProcessDownloads] : File freshly downloaded tracks
//     - Matches each downloaded file to a queued track by filename key
//     - Tags the file with the track id and moves it into the key-mixed directory
//     - Removes the matched tracks from the queue, even when a later file fails
//
//  3. [Engine.Populate] : ProcessDownloads followed by Reconcile, as one serialised run
//
//  4. [Engine.AddCurrentTrack], [Engine.Control], [Engine.PlayPreset] : Player commands
//
// # Progress Reporting
//
// Long-running operations accept an optional channel of [ProgressUpdate] values. Updates are sent
// with select and default, so a slow or absent reader never blocks a run.
//
// # Concurrency
//
// Reconciliation and post-download processing share the download queue and are serialised by the
// engine. The playlist cache has its own lock, so player commands can run alongside them.
package tasks
