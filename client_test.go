package limsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testUsername = "alice"
	testPassword = "correct-password-123"
	testUserID   = "u-1"
)

var testSigningKey = []byte("lims-test-signing-key")

// mintAccessToken issues a signed JWT the way the LIMS backend would. Local
// HS256 signing over registered claims cannot fail with a valid key.
func mintAccessToken(subject string, ttl time.Duration, serial int) string {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "lims-sxdch-test",
		ID:        strconv.Itoa(serial),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		panic(err)
	}
	return raw
}

// limsServer is a scripted stand-in for the LIMS auth backend. Tests flip its
// fields to shape one scenario; all mutable state sits behind one mutex.
type limsServer struct {
	srv *httptest.Server

	mu sync.Mutex

	accessTTL     time.Duration
	rotateRefresh bool
	omitRefresh   bool          // responses omit refresh_token entirely
	omitAccess    bool          // login responses omit access_token
	failRefresh   bool          // refresh endpoint answers 401
	failSamples   bool          // samples endpoint answers 401 regardless of token
	loginStatus   int           // non-zero: login answers this status
	logoutStatus  int           // non-zero: logout answers this status
	meStatus      int           // non-zero: me answers this status
	refreshGate   chan struct{} // non-nil: refresh handler blocks until closed

	serial       int
	lastAccess   string
	validAccess  map[string]bool
	validRefresh map[string]bool

	loginCalls   int
	refreshCalls int
	logoutCalls  int
	meCalls      int
	sampleCalls  int

	lastLogoutAuth    string
	lastLogoutRefresh string
	acceptedSamples   []string
	sampleRequestIDs  []string
}

func newLIMSServer(tb testing.TB) *limsServer {
	tb.Helper()

	s := &limsServer{
		accessTTL:     time.Hour,
		rotateRefresh: true,
		validAccess:   map[string]bool{},
		validRefresh:  map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/refresh", s.handleRefresh)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/auth/me", s.handleMe)
	mux.HandleFunc("/api/v1/samples", s.handleSamples)

	s.srv = httptest.NewServer(mux)
	tb.Cleanup(s.srv.Close)
	return s
}

func (s *limsServer) URL() string { return s.srv.URL }

func (s *limsServer) issuePairLocked() (string, string) {
	s.serial++
	access := mintAccessToken(testUserID, s.accessTTL, s.serial)
	s.lastAccess = access
	s.validAccess[access] = true

	refresh := fmt.Sprintf("refresh-%03d", s.serial)
	s.validRefresh[refresh] = true
	return access, refresh
}

func (s *limsServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginCalls++

	if s.loginStatus != 0 {
		writeJSON(w, s.loginStatus, map[string]string{"error": "scripted failure"})
		return
	}
	if body.Username != testUsername || body.Password != testPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	access, refresh := s.issuePairLocked()
	resp := map[string]string{}
	if !s.omitAccess {
		resp["access_token"] = access
	}
	if !s.omitRefresh {
		resp["refresh_token"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *limsServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.refreshCalls++
	gate := s.refreshGate
	fail := s.failRefresh || !s.validRefresh[body.RefreshToken]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if fail {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh rejected"})
		return
	}

	s.mu.Lock()
	access, refresh := s.issuePairLocked()
	resp := map[string]string{"access_token": access}
	if s.rotateRefresh && !s.omitRefresh {
		resp["refresh_token"] = refresh
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *limsServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.logoutCalls++
	s.lastLogoutAuth = r.Header.Get("Authorization")
	s.lastLogoutRefresh = body.RefreshToken
	status := s.logoutStatus
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "scripted failure"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *limsServer) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.meCalls++
	ok := s.authorizedLocked(r)
	status := s.meStatus
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "scripted failure"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        testUserID,
		"username":  testUsername,
		"full_name": "Alice Park",
		"roles":     []string{"lab_tech"},
	})
}

func (s *limsServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.sampleCalls++
	s.sampleRequestIDs = append(s.sampleRequestIDs, r.Header.Get("X-Request-ID"))
	ok := !s.failSamples && s.authorizedLocked(r)
	if ok {
		s.acceptedSamples = append(s.acceptedSamples, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *limsServer) authorizedLocked(r *http.Request) bool {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	return s.validAccess[strings.TrimPrefix(h, prefix)]
}

// invalidateAccess revokes every access token issued so far, simulating a
// server-side session invalidation that the client discovers through 401s.
func (s *limsServer) invalidateAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.validAccess {
		s.validAccess[k] = false
	}
}

// blockRefresh makes the refresh handler hold its response until the returned
// gate is closed. The cleanup releases the gate on test failure so the server
// can shut down.
func (s *limsServer) blockRefresh(t *testing.T) chan struct{} {
	t.Helper()

	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	t.Cleanup(func() {
		select {
		case <-gate:
		default:
			close(gate)
		}
	})
	return gate
}

func (s *limsServer) setFailRefresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = v
}

func (s *limsServer) setFailSamples(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSamples = v
}

func (s *limsServer) setOmitRefresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitRefresh = v
}

func (s *limsServer) setOmitAccess(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitAccess = v
}

func (s *limsServer) setLoginStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginStatus = code
}

func (s *limsServer) setLogoutStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = code
}

func (s *limsServer) setMeStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meStatus = code
}

func (s *limsServer) setRotateRefresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateRefresh = v
}

func (s *limsServer) setAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

func (s *limsServer) loginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

func (s *limsServer) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *limsServer) logoutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

func (s *limsServer) logoutSeen() (auth, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogoutAuth, s.lastLogoutRefresh
}

func (s *limsServer) meCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meCalls
}

func (s *limsServer) latestAccess() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *limsServer) acceptedSampleTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.acceptedSamples))
	copy(out, s.acceptedSamples)
	return out
}

func (s *limsServer) seenSampleRequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sampleRequestIDs))
	copy(out, s.sampleRequestIDs)
	return out
}

// issuedTokens returns every access and refresh token the server ever handed
// out, including revoked ones.
func (s *limsServer) issuedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.validAccess)+len(s.validRefresh))
	for tok := range s.validAccess {
		out = append(out, tok)
	}
	for tok := range s.validRefresh {
		out = append(out, tok)
	}
	return out
}

// recordingHandler captures session-expired notifications.
type recordingHandler struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (h *recordingHandler) SessionExpired(ev SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHandler) lastReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return ""
	}
	return h.events[len(h.events)-1].Reason
}

// testConfig turns the defaults into something a scripted local server can
// satisfy. Cooldown zero keeps throttling out of scenarios that are not about
// throttling.
func testConfig(baseURL string) Config {
	cfg := defaultConfig()
	cfg.HTTP.BaseURL = baseURL
	cfg.HTTP.RequestTimeout = 10 * time.Second
	cfg.Refresh.Timeout = 10 * time.Second
	cfg.Notify.Cooldown = 0
	return cfg
}

func newTestClient(t *testing.T, srv *limsServer, mutate func(*Config)) (*Client, *recordingHandler) {
	t.Helper()

	cfg := testConfig(srv.URL())
	if mutate != nil {
		mutate(&cfg)
	}

	handler := &recordingHandler{}
	client, err := New().
		WithConfig(cfg).
		WithSessionHandler(handler).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)

	return client, handler
}

func login(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Login(context.Background(), testUsername, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func newSampleRequest(t *testing.T, c *Client) *http.Request {
	t.Helper()
	req, err := c.NewRequest(context.Background(), http.MethodGet, "/api/v1/samples", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	return req
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
