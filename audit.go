package limsclient

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dailycafi/lims-sxdch-sub003/credentials"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLogout                 = "logout"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventReplaySuccess          = "replay_success"
	auditEventReplayFailure          = "replay_failure"
	auditEventSessionExpired         = "session_expired"
	auditEventNotificationRaised     = "notification_raised"
	auditEventNotificationSuppressed = "notification_suppressed"
)

// AuditErrorCode defines a public type used by lims-client APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrNoRefreshToken     AuditErrorCode = "no_refresh_token"
	auditErrRefreshRejected    AuditErrorCode = "refresh_rejected"
	auditErrReplayNotSupported AuditErrorCode = "replay_not_supported"
	auditErrKeyringUnavailable AuditErrorCode = "keyring_unavailable"
	auditErrClientClosed       AuditErrorCode = "client_closed"
	auditErrCanceled           AuditErrorCode = "canceled"
	auditErrAPIStatus          AuditErrorCode = "api_status"
	auditErrTransport          AuditErrorCode = "transport_failure"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	endpoint string,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Endpoint:  endpoint,
		RequestID: requestIDFromContext(ctx),
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	// ErrNoRefreshToken usually travels wrapped inside ErrSessionExpired,
	// so the more specific code is matched first.
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrRefreshRejected):
		return auditErrRefreshRejected
	case errors.Is(err, ErrReplayNotSupported):
		return auditErrReplayNotSupported
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, credentials.ErrKeyringUnavailable):
		return auditErrKeyringUnavailable
	case errors.Is(err, ErrClientClosed):
		return auditErrClientClosed
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	default:
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return auditErrAPIStatus
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return auditErrTransport
	}

	return auditErrInternal
}
