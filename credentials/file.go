package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileKeyring persists the credential pair as a JSON document in a single
// file. Writes go through a temp file plus rename so a crash mid-write never
// leaves a truncated token on disk. The file is created with mode 0600.
type FileKeyring struct {
	mu   sync.Mutex
	path string
}

type tokenFile struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token,omitempty"`
}

// NewFileKeyring describes the newfilekeyring operation and its observable behavior.
//
// NewFileKeyring does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewFileKeyring(path string) *FileKeyring {
	return &FileKeyring{path: path}
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *FileKeyring) Save(_ context.Context, access, refresh string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := json.MarshalIndent(tokenFile{Access: access, Refresh: refresh}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	tmp := k.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	if err := os.Rename(tmp, k.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Load describes the load operation and its observable behavior.
//
// Load may return an error when input validation, dependency calls, or security checks fail.
// Load does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *FileKeyring) Load(_ context.Context) (string, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := os.ReadFile(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		// A corrupt file is treated as no stored session rather than a hard
		// failure: the caller falls back to a fresh login.
		return "", "", nil
	}
	return tf.Access, tf.Refresh, nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *FileKeyring) Delete(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.Remove(k.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}
