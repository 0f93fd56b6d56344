// Package bridge connects the command engine to the MQTT message bus.
//
// # Topics
//
// The bridge subscribes at QoS 1 to four command topics:
//
//	SpotifyCurrentlyPlaying/Add        "Like" or comma-separated playlist names
//	SpotifyControl                     toggle, togglePlay, next, previous
//	PlaySpotifyInKitchen               playback preset user name
//	PopulateSpotifyDownloadPlaylist    no payload
//
// Results are published to SpotifyCurrentlyPlaying/Result, PopulateSpotifyDownloadPlaylist/Success
// and TracksToDownload. Every failure is published to the command topic's /Error subtopic as
// "{HH:MM}\n{context}\n{error}".
//
// # Concurrency
//
// Each inbound message is handled in its own goroutine by the [Router]. Handlers recover from
// panics, so a failing command never stops the process. The [Client] reconnects indefinitely on a
// fixed delay and resubscribes after every reconnect.
package bridge
