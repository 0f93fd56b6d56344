// Package services wraps the remote music service (Spotify).
//
// # Layers
//
// [Transport] is the raw capability set, one HTTP request per method, implemented by [SpotifyTransport]
// on top of github.com/zmb3/spotify/v2. [MusicClient] layers pagination, chunked mutations and the
// retry [Policy] over any Transport, so tests can swap in an in-memory fake.
//
// # Retries
//
// Every call result is classified by [Classify]:
//   - [KindRateLimited] : status 429, retried after the server's Retry-After delay
//   - [KindTransient] : status 5xx or a network failure, retried after BaseDelay * 1.5^attempt
//   - [KindFatal] : any other failure, returned immediately
//
// MaxAttempts counts every call including the first. When the budget is spent the error wraps
// [shared.ErrRetriesExhausted] together with the last failure.
//
// # Authentication
//
// [NewHTTPClient] loads a previously obtained OAuth2 token from the configured token file. The returned
// client refreshes expired tokens and writes each refreshed token back to the same file.
package services
