// Package internal contains plumbing that is intentionally private to the LIMS client.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public API except through root aliases.
//   - Be imported by any package outside this module.
package internal
