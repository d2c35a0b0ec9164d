// Package credentials holds the process-wide LIMS session credential and its durable
// mirror.
//
// # Storage model
//
// Exactly one credential pair exists per process: the access token presented on every
// API call and the refresh token used to obtain a replacement when the session expires.
// The pair is mirrored to a [Keyring] under two fixed keys ("access_token",
// "refresh_token") so that a restarted client resumes the same session without a new
// login. Keyring writes happen before the in-memory value changes, and the in-memory
// value changes before subscribers are told: a subscriber can never observe a
// credential that would be lost on crash.
//
// # Architecture boundaries
//
// This package owns the [Store] (current credential, version counter, subscriber
// fan-out) and the [Keyring] implementations (memory, file, Redis). It does NOT issue
// HTTP calls, decide when a refresh is due, or interpret token contents — those
// responsibilities belong to the client package.
//
// # What this package must NOT do
//
//   - Import the root package or token (no upward imports).
//   - Log token values or embed them in error strings.
//   - Swallow durable-write failures; a lost token makes the session unrecoverable.
package credentials
