package credentials

import (
	"context"
	"sync"
)

// Subscriber receives the credential value after every committed mutation.
// Callbacks run synchronously inside the mutating call, after the durable
// write and the in-memory update. A subscriber must not mutate the Store from
// inside its callback.
type Subscriber interface {
	CredentialChanged(Credential)
}

// SubscriberFunc adapts a plain function to the [Subscriber] interface.
type SubscriberFunc func(Credential)

// CredentialChanged describes the credentialchanged operation and its observable behavior.
func (f SubscriberFunc) CredentialChanged(c Credential) {
	f(c)
}

// Store is the single process-wide holder of the current session credential.
//
// ATOMICITY NOTE: every mutation follows the same committed order — durable
// keyring write, then in-memory value and version, then subscriber callbacks —
// and whole mutation+notification sequences are serialized against each
// other. Readers never block on a slow subscriber; they only contend on the
// short state lock.
type Store struct {
	notifyMu sync.Mutex // serializes mutation+notification sequences
	mu       sync.Mutex // guards the fields below
	cred     Credential
	version  uint64
	keyring  Keyring
	subs     map[uint64]Subscriber
	nextSub  uint64
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
// A nil keyring falls back to an in-process [MemoryKeyring].
func NewStore(keyring Keyring) *Store {
	if keyring == nil {
		keyring = NewMemoryKeyring()
	}
	return &Store{
		keyring: keyring,
		subs:    make(map[uint64]Subscriber),
	}
}

// Load hydrates the in-memory credential from the keyring. It is meant to run
// once at construction time, before any subscriber registers, and therefore
// does not notify.
func (s *Store) Load(ctx context.Context) error {
	access, refresh, err := s.keyring.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{Access: access, Refresh: refresh}
	s.version++
	return nil
}

// SetTokens commits a new credential pair. An empty refresh retains the
// previously stored refresh token (non-rotating deployments omit it from
// refresh responses). The durable write, the memory update, and the
// synchronous subscriber notifications all complete before SetTokens returns.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" {
		return ErrEmptyAccessToken
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	_, err := s.commit(ctx, access, refresh, nil)
	return err
}

// CompareAndSetTokens commits like [Store.SetTokens] but only when the store
// version still equals expected. It reports false, without error and without
// touching state, when another mutation (logout, fresh login) landed first.
func (s *Store) CompareAndSetTokens(ctx context.Context, expected uint64, access, refresh string) (bool, error) {
	if access == "" {
		return false, ErrEmptyAccessToken
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.commit(ctx, access, refresh, &expected)
}

func (s *Store) commit(ctx context.Context, access, refresh string, expected *uint64) (bool, error) {
	s.mu.Lock()
	if expected != nil && s.version != *expected {
		s.mu.Unlock()
		return false, nil
	}

	next := Credential{Access: access, Refresh: refresh}
	if refresh == "" {
		next.Refresh = s.cred.Refresh
	}

	if err := s.keyring.Save(ctx, next.Access, next.Refresh); err != nil {
		s.mu.Unlock()
		return false, err
	}

	s.cred = next
	s.version++
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.CredentialChanged(next)
	}
	return true, nil
}

// Clear wipes the credential. The in-memory value is zeroed and subscribers
// are notified even when the keyring delete fails: a stale durable copy is
// recoverable, a live in-memory credential the caller believes gone is not.
// The keyring error is still returned.
func (s *Store) Clear(ctx context.Context) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	err := s.keyring.Delete(ctx)
	s.cred = Credential{}
	s.version++
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.CredentialChanged(Credential{})
	}
	return err
}

// CompareAndClear wipes like [Store.Clear] but only when the store version
// still equals expected. It reports false, without error and without touching
// state, when another mutation landed first. A refresh cycle that decides the
// session is dead uses this so it cannot wipe a credential some other caller
// just committed.
func (s *Store) CompareAndClear(ctx context.Context, expected uint64) (bool, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.version != expected {
		s.mu.Unlock()
		return false, nil
	}

	err := s.keyring.Delete(ctx)
	s.cred = Credential{}
	s.version++
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.CredentialChanged(Credential{})
	}
	return true, err
}

// Access describes the access operation and its observable behavior.
//
// Access does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Access() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.Access
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Refresh() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.Refresh
}

// Snapshot returns the current credential together with the store version the
// value was read at. The version feeds [Store.CompareAndSetTokens].
func (s *Store) Snapshot() (Credential, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred, s.version
}

// Subscribe registers sub and returns its cancel function. Registration and
// cancellation are safe while notifications are in flight; an in-flight
// notification pass uses the membership captured at commit time.
func (s *Store) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) snapshotSubsLocked() []Subscriber {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}
