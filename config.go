package limsclient

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config defines a public type used by lims-client APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	HTTP    HTTPConfig
	Auth    AuthConfig
	Refresh RefreshConfig
	Notify  NotifyConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig defines a public type used by lims-client APIs.
//
// HTTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HTTPConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	UserAgent      string
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig defines a public type used by lims-client APIs.
//
// AuthConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuthConfig struct {
	LoginPath   string
	RefreshPath string
	LogoutPath  string
	MePath      string
	Scheme      string // "Bearer" unless the deployment rewrites it
	Header      string // "Authorization" unless the deployment rewrites it
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig defines a public type used by lims-client APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	// Timeout bounds the refresh HTTP call. The call runs on a detached
	// context so that the caller whose 401 started the cycle cannot cancel
	// a refresh other callers are waiting on.
	Timeout time.Duration
	// ExpiryLeeway is the window before access-token expiry inside which
	// EnsureFresh refreshes proactively.
	ExpiryLeeway time.Duration
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig defines a public type used by lims-client APIs.
//
// NotifyConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type NotifyConfig struct {
	// Cooldown is the minimum gap between two session-expired
	// notifications. A successful login or refresh also arms it, so a
	// failure immediately after recovery stays quiet.
	Cooldown time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by lims-client APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by lims-client APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration the builder starts from:
// standard auth endpoint paths, Bearer authorization, a 30s request timeout,
// and audit/metrics disabled. The base URL is deployment-specific and must be
// set before the config validates.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			RequestTimeout: 30 * time.Second,
			UserAgent:      "lims-sxdch-client/1.0",
		},
		Auth: AuthConfig{
			LoginPath:   "/auth/login",
			RefreshPath: "/auth/refresh",
			LogoutPath:  "/auth/logout",
			MePath:      "/auth/me",
			Scheme:      "Bearer",
			Header:      "Authorization",
		},
		Refresh: RefreshConfig{
			Timeout:      15 * time.Second,
			ExpiryLeeway: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Cooldown: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// HTTP
	if c.HTTP.BaseURL == "" {
		return errors.New("HTTP BaseURL is required")
	}
	base, err := url.Parse(c.HTTP.BaseURL)
	if err != nil {
		return errors.New("HTTP BaseURL is not a valid URL")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return errors.New("HTTP BaseURL scheme must be http or https")
	}
	if base.Host == "" {
		return errors.New("HTTP BaseURL host is required")
	}
	if c.HTTP.RequestTimeout < 0 {
		return errors.New("HTTP RequestTimeout must be >= 0")
	}

	// Auth
	for _, p := range []struct {
		name string
		path string
	}{
		{"LoginPath", c.Auth.LoginPath},
		{"RefreshPath", c.Auth.RefreshPath},
		{"LogoutPath", c.Auth.LogoutPath},
		{"MePath", c.Auth.MePath},
	} {
		if p.path == "" || !strings.HasPrefix(p.path, "/") {
			return errors.New("Auth " + p.name + " must start with '/'")
		}
	}
	if c.Auth.Scheme == "" || strings.ContainsAny(c.Auth.Scheme, " \t") {
		return errors.New("Auth Scheme must be a single token")
	}
	if c.Auth.Header == "" {
		return errors.New("Auth Header is required")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.ExpiryLeeway < 0 {
		return errors.New("Refresh ExpiryLeeway must be >= 0")
	}

	// Notify
	if c.Notify.Cooldown < 0 {
		return errors.New("Notify Cooldown must be >= 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
