package credentials

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyringUnavailable is an exported constant or variable used by the LIMS client.
var ErrKeyringUnavailable = errors.New("keyring unavailable")

// ErrEmptyAccessToken is returned when a mutation would store a credential
// without an access token.
var ErrEmptyAccessToken = errors.New("empty access token")

// KeyAccessToken and KeyRefreshToken are the fixed durable key names every
// Keyring implementation stores under.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Keyring is the durable mirror of the in-memory credential. Implementations
// must treat an absent credential as ("", "", nil) on Load and must make
// Delete idempotent.
type Keyring interface {
	Save(ctx context.Context, access, refresh string) error
	Load(ctx context.Context) (access, refresh string, err error)
	Delete(ctx context.Context) error
}

// MemoryKeyring is a process-local [Keyring] with no persistence across
// restarts. It backs tests and short-lived tools.
type MemoryKeyring struct {
	mu      sync.Mutex
	access  string
	refresh string
}

// NewMemoryKeyring describes the newmemorykeyring operation and its observable behavior.
//
// NewMemoryKeyring does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryKeyring() *MemoryKeyring {
	return &MemoryKeyring{}
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *MemoryKeyring) Save(_ context.Context, access, refresh string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.access = access
	k.refresh = refresh
	return nil
}

// Load describes the load operation and its observable behavior.
//
// Load may return an error when input validation, dependency calls, or security checks fail.
// Load does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *MemoryKeyring) Load(_ context.Context) (string, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.access, k.refresh, nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *MemoryKeyring) Delete(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.access = ""
	k.refresh = ""
	return nil
}
