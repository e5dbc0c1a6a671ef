// Package timeouts defines shared timeout constants used across the tracker
// process so the durations stay discoverable in one place.
package timeouts

import "time"

// Dispatch caps a single notification dispatch call made while draining jobs.
const Dispatch = 10 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Request caps the time allowed for one HTTP API request.
const Request = 30 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// GRPCDial bounds a health probe dial against a running tracker.
const GRPCDial = 2 * time.Second
