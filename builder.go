package limsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dailycafi/lims-sxdch-sub003/credentials"
	internalaudit "github.com/dailycafi/lims-sxdch-sub003/internal/audit"
)

// Builder defines a public type used by lims-client APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	transport http.RoundTripper
	keyring   credentials.Keyring
	handler   SessionHandler
	gate      func() bool
	auditSink AuditSink

	hydrate bool
	built   bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL describes the withbaseurl operation and its observable behavior.
//
// WithBaseURL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.HTTP.BaseURL = baseURL
	return b
}

// WithTransport sets the base [http.RoundTripper] the managed chain
// dispatches through. Defaults to [http.DefaultTransport].
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithKeyring sets the durable credential storage. Defaults to an in-process
// [credentials.MemoryKeyring].
func (b *Builder) WithKeyring(k credentials.Keyring) *Builder {
	b.keyring = k
	return b
}

// WithSessionHandler registers the callback that observes terminal session
// expiry.
func (b *Builder) WithSessionHandler(h SessionHandler) *Builder {
	b.handler = h
	return b
}

// WithNotificationGate registers a predicate that reports whether the
// application is already on its sign-in surface. While it returns true,
// session-expired notifications are suppressed; the expiry itself still
// propagates to the failing calls. The predicate runs on whichever goroutine
// detected the expiry and must be safe for concurrent use.
func (b *Builder) WithNotificationGate(gate func() bool) *Builder {
	b.gate = gate
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithStoredSession hydrates the credential store from the keyring during
// Build, resuming a session that survived a process restart.
func (b *Builder) WithStoredSession() *Builder {
	b.hydrate = true
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if cfg.HTTP.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrBuilderIncomplete)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(cfg.HTTP.BaseURL)
	if err != nil {
		return nil, err
	}

	store := credentials.NewStore(b.keyring)

	client := &Client{
		config:  cfg,
		baseURL: baseURL,
		store:   store,
	}

	client.metrics = NewMetrics(cfg.Metrics)
	client.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	appGate := b.gate
	client.notifier = newExpiryNotifier(cfg.Notify.Cooldown, b.handler, func() bool {
		if client.loginInFlight.Load() > 0 {
			return true
		}
		return appGate != nil && appGate()
	})

	authorizer := &requestAuthorizer{
		base:    b.transport,
		creds:   store,
		header:  cfg.Auth.Header,
		scheme:  cfg.Auth.Scheme,
		agent:   cfg.HTTP.UserAgent,
		metrics: client.metrics,
	}

	client.rc = newRefreshCoordinator(refreshDeps{
		store:  store,
		replay: authorizer,
		grant:  client.refreshGrant,
		notify: client.notifySessionExpired,
		reset:  client.notifier.Reset,
		emit: func(eventType string, success bool, endpoint string, err error, metadata func() map[string]string) {
			client.emitAudit(context.Background(), eventType, success, endpoint, "", err, metadata)
		},
		metrics:  client.metrics,
		endpoint: cfg.Auth.RefreshPath,
		timeout:  cfg.Refresh.Timeout,
	})

	client.http = &http.Client{
		Transport: &refreshTransport{next: authorizer, rc: client.rc},
		Timeout:   cfg.HTTP.RequestTimeout,
	}

	if b.hydrate {
		if err := store.Load(context.Background()); err != nil {
			client.audit.Close()
			return nil, err
		}
	}

	b.built = true

	return client, nil
}
