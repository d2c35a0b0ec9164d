// Command lims-authstorm stress-tests the LIMS API client against an
// embedded fake LIMS backend. A login phase cycles the session through
// login/logout, then a storm phase hammers an authorized endpoint from many
// workers while the backend periodically revokes every live access token,
// forcing the client to coalesce refreshes and replay the interrupted calls.
// The stored session lives in a Redis keyring; without -redis-addr an
// embedded miniredis instance is used.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	limsclient "github.com/dailycafi/lims-sxdch-sub003"
	"github.com/dailycafi/lims-sxdch-sub003/credentials"
)

const (
	stormUsername = "storm-operator"
	stormPassword = "storm-password-42"
)

func main() {
	var (
		workers     = flag.Int("workers", 32, "concurrent callers in the storm phase")
		ops         = flag.Int("ops", 20000, "authorized calls in the storm phase")
		logins      = flag.Int("logins", 25, "login/logout cycles before the storm")
		revokeEvery = flag.Int("revoke-every", 500, "revoke all access tokens after this many calls (0 disables)")
		redisAddr   = flag.String("redis-addr", "", "redis address for the keyring; if empty, REDIS_ADDR env or miniredis is used")
		redisKey    = flag.String("redis-key", "lims:authstorm:credentials", "redis key holding the stored session")
	)
	flag.Parse()

	if *workers <= 0 || *ops <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "workers, ops, and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	lims := newStormLIMS()
	srv := httptest.NewServer(lims.routes())
	defer srv.Close()
	fmt.Printf("fake LIMS backend at %s\n", srv.URL)

	var expiries atomic.Int64

	client, err := limsclient.New().
		WithBaseURL(srv.URL).
		WithTransport(&http.Transport{
			MaxIdleConns:        *workers * 2,
			MaxIdleConnsPerHost: *workers * 2,
		}).
		WithKeyring(credentials.NewRedisKeyring(rdb, *redisKey)).
		WithSessionHandler(limsclient.SessionHandlerFunc(func(limsclient.SessionEvent) {
			expiries.Add(1)
		})).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("running %d login/logout cycles...\n", *logins)
	loginStats := runLoginPhase(ctx, client, *logins)

	fmt.Printf("storm: %d authorized calls across %d workers, revoking access every %d calls...\n",
		*ops, *workers, *revokeEvery)
	stormStats := runStormPhase(ctx, client, lims, *ops, *workers, *revokeEvery)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("storm", stormStats)

	snap := client.MetricsSnapshot()
	fmt.Println("---- client metrics ----")
	fmt.Printf("refreshes=%d coalesced=%d replays=%d refresh_failures=%d session_expired=%d audit_dropped=%d\n",
		snap.Counters[limsclient.MetricRefreshSuccess],
		snap.Counters[limsclient.MetricRefreshCoalesced],
		snap.Counters[limsclient.MetricReplaySuccess],
		snap.Counters[limsclient.MetricRefreshFailure],
		snap.Counters[limsclient.MetricSessionExpired],
		client.AuditDropped(),
	)
	if n := expiries.Load(); n > 0 {
		fmt.Printf("session handler notified %d time(s)\n", n)
	}
	if buckets, ok := snap.Histograms[limsclient.MetricRefreshLatency]; ok {
		fmt.Printf("refresh latency buckets (ms <=50/100/250/500/1000/2500/5000/inf): %v\n", buckets)
	}

	if err := client.Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logout: %v\n", err)
	}
}

// runLoginPhase cycles login/logout sequentially; the client holds a single
// session, so concurrent logins would only race each other over the store.
// The final cycle skips the logout to leave the session armed for the storm.
func runLoginPhase(ctx context.Context, client *limsclient.Client, cycles int) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, cycles)
	)

	start := time.Now()
	for i := 0; i < cycles; i++ {
		t0 := time.Now()
		err := client.Login(ctx, stormUsername, stormPassword)
		latencies = append(latencies, time.Since(t0))
		if err != nil {
			failures++
			continue
		}
		if i < cycles-1 {
			if err := client.Logout(ctx); err != nil {
				failures++
			}
		}
	}
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runStormPhase(ctx context.Context, client *limsclient.Client, lims *stormLIMS, ops, workers, revokeEvery int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if revokeEvery > 0 && i > 0 && i%revokeEvery == 0 {
					lims.revokeAccess()
				}
				t0 := time.Now()
				err := probeOnce(ctx, client)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func probeOnce(ctx context.Context, client *limsclient.Client) error {
	req, err := client.NewRequest(ctx, http.MethodGet, "/api/v1/samples", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// stormLIMS is an in-process LIMS stand-in tuned for throughput: opaque
// tokens, no signing, coarse locking. Refresh tokens survive revokeAccess so
// the client always recovers without terminal expiry.
type stormLIMS struct {
	mu      sync.Mutex
	access  map[string]bool
	refresh map[string]bool
}

func newStormLIMS() *stormLIMS {
	return &stormLIMS{
		access:  make(map[string]bool),
		refresh: make(map[string]bool),
	}
}

func (l *stormLIMS) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", l.handleLogin)
	mux.HandleFunc("POST /auth/refresh", l.handleRefresh)
	mux.HandleFunc("POST /auth/logout", l.handleLogout)
	mux.HandleFunc("GET /api/v1/samples", l.handleSamples)
	return mux
}

func (l *stormLIMS) issueLocked() (string, string) {
	access := uuid.NewString()
	refresh := uuid.NewString()
	l.access[access] = true
	l.refresh[refresh] = true
	return access, refresh
}

func (l *stormLIMS) revokeAccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for tok := range l.access {
		l.access[tok] = false
	}
}

func (l *stormLIMS) authorized(r *http.Request) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.access[header[len(prefix):]]
}

func (l *stormLIMS) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if body.Username != stormUsername || body.Password != stormPassword {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	l.mu.Lock()
	access, refresh := l.issueLocked()
	l.mu.Unlock()

	writeTokenPair(w, access, refresh)
}

func (l *stormLIMS) handleRefresh(w http.ResponseWriter, r *http.Request) {
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

	writeTokenPair(w, access, refresh)
}

func (l *stormLIMS) handleLogout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (l *stormLIMS) handleSamples(w http.ResponseWriter, r *http.Request) {
	if !l.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`[{"id":"smp-0001","specimen":"whole blood","status":"pending"}]`))
}

func writeTokenPair(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}
