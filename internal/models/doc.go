// Package models defines the domain entities shared by the bridge.
//
// The package contains two categories of types:
//
// 1. Remote music objects, independent of the Spotify SDK:
//   - [Track] : a playable recording, optionally linked to a regional alias
//   - [Playlist] : playlist metadata including its snapshot token
//   - [Device] and [PlaybackState] : player state used by playback commands
//
// 2. Persistent entities:
//   - [Run] : one handled bus command, stored in the runs table
//   - [ReconcileStats] : counters recorded for a reconciliation run
package models
