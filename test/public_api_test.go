package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	limsclient "github.com/dailycafi/lims-sxdch-sub003"
	"github.com/dailycafi/lims-sxdch-sub003/credentials"
	"github.com/dailycafi/lims-sxdch-sub003/token"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = limsclient.New
	_ = limsclient.DefaultConfig

	var _ *limsclient.Client
	var _ *limsclient.Builder
	var _ limsclient.Config
	var _ limsclient.ClientReport
	var _ limsclient.Identity
	var _ limsclient.SessionEvent
	var _ limsclient.MetricsSnapshot
	var _ limsclient.AuditEvent
	var _ limsclient.AuditSink

	var _ error = limsclient.ErrInvalidCredentials
	var _ error = limsclient.ErrUnauthenticated
	var _ error = limsclient.ErrSessionExpired
	var _ error = limsclient.ErrNoRefreshToken
	var _ error = limsclient.ErrRefreshRejected
	var _ error = limsclient.ErrReplayNotSupported
	var _ error = limsclient.ErrBuilderIncomplete
	var _ error = limsclient.ErrClientClosed
	var _ error = credentials.ErrKeyringUnavailable
	var _ error = token.ErrMalformed
	var _ error = (*limsclient.APIError)(nil)

	var _ func(*limsclient.Builder, func() bool) *limsclient.Builder = (*limsclient.Builder).WithNotificationGate

	var _ limsclient.SessionHandler = limsclient.SessionHandlerFunc(nil)
	var _ limsclient.AuditSink = (*limsclient.NoOpSink)(nil)
	var _ limsclient.AuditSink = (*limsclient.ChannelSink)(nil)
	var _ limsclient.AuditSink = (*limsclient.JSONWriterSink)(nil)

	var _ credentials.Keyring = (*credentials.MemoryKeyring)(nil)
	var _ credentials.Keyring = (*credentials.FileKeyring)(nil)
	var _ credentials.Keyring = (*credentials.RedisKeyring)(nil)

	var _ func(*limsclient.Client, context.Context, string, string) error = (*limsclient.Client).Login
	var _ func(*limsclient.Client, context.Context) error = (*limsclient.Client).Logout
	var _ func(*limsclient.Client, context.Context) (*limsclient.Identity, error) = (*limsclient.Client).Me
	var _ func(*limsclient.Client, context.Context) error = (*limsclient.Client).EnsureFresh
	var _ func(*limsclient.Client, context.Context, string, string, any) (*http.Request, error) = (*limsclient.Client).NewRequest
	var _ func(*limsclient.Client, *http.Request) (*http.Response, error) = (*limsclient.Client).Do
	var _ func(*limsclient.Client) *http.Client = (*limsclient.Client).HTTPClient
	var _ func(*limsclient.Client) limsclient.ClientReport = (*limsclient.Client).Report
	var _ func(*limsclient.Client) limsclient.MetricsSnapshot = (*limsclient.Client).MetricsSnapshot
	var _ func(*limsclient.Client) uint64 = (*limsclient.Client).AuditDropped
	var _ func(*limsclient.Client) = (*limsclient.Client).AcknowledgeSessionExpiry
	var _ func(*limsclient.Client) = (*limsclient.Client).Close

	var _ func(string) (*token.Claims, error) = token.Inspect
	var _ func(*token.Claims, time.Duration) bool = (*token.Claims).ExpiresWithin
}
