package limsclient

import "context"

type bootstrapContextKey struct{}
type replayedContextKey struct{}
type requestIDContextKey struct{}

// WithRequestID attaches a caller-chosen request identifier to ctx. The
// client stamps it into the X-Request-ID header instead of generating one,
// which lets embedding applications correlate LIMS calls with their own
// tracing. When absent, every outgoing request gets a fresh UUID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// withBootstrap marks ctx as belonging to a credential bootstrap call
// (login, refresh, logout). Bootstrap calls skip Authorization injection
// where noted and are never intercepted on 401, so a rejected login cannot
// trigger a refresh cycle.
func withBootstrap(ctx context.Context) context.Context {
	return context.WithValue(ctx, bootstrapContextKey{}, true)
}

// withReplayed marks ctx as belonging to a request that has already been
// retried once after a refresh. A second 401 on such a request is terminal.
func withReplayed(ctx context.Context) context.Context {
	return context.WithValue(ctx, replayedContextKey{}, true)
}

func isBootstrap(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	marked, _ := ctx.Value(bootstrapContextKey{}).(bool)
	return marked
}

func isReplayed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	marked, _ := ctx.Value(replayedContextKey{}).(bool)
	return marked
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}
