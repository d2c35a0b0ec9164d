//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	limsclient "github.com/dailycafi/lims-sxdch-sub003"
	"github.com/dailycafi/lims-sxdch-sub003/credentials"
)

const (
	intUsername = "lab-tech-07"
	intPassword = "integration-password-9"
	intUserID   = "u-int-1"
)

var intSigningKey = []byte("integration-signing-key")

// integrationLIMS is a fake LIMS backend for black-box suites: it mints
// HS256-signed access tokens, rotates refresh tokens on every grant, counts
// refresh calls, and can hold an in-flight refresh on a gate so tests can
// pile callers onto one cycle deterministically.
type integrationLIMS struct {
	srv *httptest.Server

	mu          sync.Mutex
	serial      int
	accessTTL   time.Duration
	access      map[string]bool
	refresh     map[string]bool
	refreshGate chan struct{}

	refreshCalls atomic.Int64
}

func newIntegrationBackend(t *testing.T) *integrationLIMS {
	t.Helper()

	l := &integrationLIMS{
		accessTTL: 15 * time.Minute,
		access:    make(map[string]bool),
		refresh:   make(map[string]bool),
	}
	l.srv = httptest.NewServer(l.routes())
	t.Cleanup(l.srv.Close)
	return l
}

func (l *integrationLIMS) url() string { return l.srv.URL }

// setAccessTTL shortens minted token lifetimes, bringing them inside the
// client's proactive-refresh leeway.
func (l *integrationLIMS) setAccessTTL(ttl time.Duration) {
	l.mu.Lock()
	l.accessTTL = ttl
	l.mu.Unlock()
}

// blockRefresh makes the refresh endpoint park until the returned release
// function runs. Release is idempotent and registered as cleanup.
func (l *integrationLIMS) blockRefresh(t *testing.T) func() {
	t.Helper()

	gate := make(chan struct{})
	l.mu.Lock()
	l.refreshGate = gate
	l.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func (l *integrationLIMS) revokeAccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for tok := range l.access {
		l.access[tok] = false
	}
}

func (l *integrationLIMS) revokeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for tok := range l.access {
		l.access[tok] = false
	}
	for tok := range l.refresh {
		l.refresh[tok] = false
	}
}

func (l *integrationLIMS) issueLocked() (string, string) {
	l.serial++
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   intUserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(l.accessTTL)),
		ID:        fmt.Sprintf("int-%03d", l.serial),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(intSigningKey)
	if err != nil {
		panic(err)
	}
	refresh := fmt.Sprintf("int-refresh-%03d", l.serial)
	l.access[access] = true
	l.refresh[refresh] = true
	return access, refresh
}

func (l *integrationLIMS) authorized(r *http.Request) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.access[header[len(prefix):]]
}

func (l *integrationLIMS) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", l.handleLogin)
	mux.HandleFunc("POST /auth/refresh", l.handleRefresh)
	mux.HandleFunc("POST /auth/logout", l.handleLogout)
	mux.HandleFunc("GET /auth/me", l.handleMe)
	mux.HandleFunc("GET /api/v1/samples", l.handleSamples)
	return mux
}

func (l *integrationLIMS) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if body.Username != intUsername || body.Password != intPassword {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	l.mu.Lock()
	access, refresh := l.issueLocked()
	l.mu.Unlock()

	writeIntJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (l *integrationLIMS) handleRefresh(w http.ResponseWriter, r *http.Request) {
	l.refreshCalls.Add(1)

	l.mu.Lock()
	gate := l.refreshGate
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	l.mu.Lock()
	if !l.refresh[body.RefreshToken] {
		l.mu.Unlock()
		http.Error(w, "refresh token revoked", http.StatusUnauthorized)
		return
	}
	l.refresh[body.RefreshToken] = false
	access, refresh := l.issueLocked()
	l.mu.Unlock()

	writeIntJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (l *integrationLIMS) handleLogout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (l *integrationLIMS) handleMe(w http.ResponseWriter, r *http.Request) {
	if !l.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeIntJSON(w, http.StatusOK, map[string]any{
		"id":       intUserID,
		"username": intUsername,
		"roles":    []string{"lab_tech"},
	})
}

func (l *integrationLIMS) handleSamples(w http.ResponseWriter, r *http.Request) {
	if !l.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeIntJSON(w, http.StatusOK, []map[string]string{
		{"id": "smp-0001", "status": "pending"},
	})
}

func writeIntJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newIntegrationKeyring starts a miniredis instance and returns a keyring
// backed by it.
func newIntegrationKeyring(t *testing.T) (*credentials.RedisKeyring, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	keyring := credentials.NewRedisKeyring(rdb, "lims:test:credentials")

	return keyring, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func newIntegrationClient(t *testing.T, lims *integrationLIMS, keyring credentials.Keyring) *limsclient.Client {
	t.Helper()

	cfg := limsclient.DefaultConfig()
	cfg.HTTP.BaseURL = lims.url()
	cfg.HTTP.RequestTimeout = 10 * time.Second
	cfg.Refresh.Timeout = 10 * time.Second
	cfg.Notify.Cooldown = 0

	b := limsclient.New().
		WithConfig(cfg).
		WithMetricsEnabled(true)
	if keyring != nil {
		b = b.WithKeyring(keyring)
	}

	client, err := b.Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// waitForReport polls the client report until cond holds or the deadline
// passes.
func waitForReport(t *testing.T, client *limsclient.Client, what string, cond func(limsclient.ClientReport) bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(client.Report()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
