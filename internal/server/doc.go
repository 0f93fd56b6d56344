// Package server provides the bridge's read-only status server.
//
// [NewRouter] builds a chi router exposing:
//
//	GET /healthz        bus connection state
//	GET /runs?limit=N   recent command runs, newest first
//	GET /cache          playlist cache snapshot
//
// Every request passes through [RequestLogger] and chi's panic recoverer. [Server] runs the router
// until its context is cancelled and then shuts down gracefully.
package server
