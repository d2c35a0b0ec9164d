package limsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dailycafi/lims-sxdch-sub003/token"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenPairResponse is the shape of both login and refresh responses. A
// missing refresh_token on refresh means the server kept the old one.
type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}

	ctx = c.ensureRequestID(ctx)

	// The in-flight marker gates expiry notifications: an expiry detected
	// while the operator is already logging back in is noise.
	c.loginInFlight.Add(1)
	defer c.loginInFlight.Add(-1)

	path := c.config.Auth.LoginPath
	req, err := c.newBootstrapRequest(ctx, http.MethodPost, path, loginRequest{Username: username, Password: password})
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.loginFailed(ctx, path, err)
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		discardBody(resp)
		err = fmt.Errorf("%w: status %d", ErrInvalidCredentials, resp.StatusCode)
		c.loginFailed(ctx, path, err)
		return err
	default:
		err = newAPIError(resp, path)
		c.loginFailed(ctx, path, err)
		return err
	}

	var pair tokenPairResponse
	if err := decodeJSON(resp, &pair); err != nil {
		c.loginFailed(ctx, path, err)
		return err
	}
	if pair.AccessToken == "" {
		err = errors.New("login response carried no access token")
		c.loginFailed(ctx, path, err)
		return err
	}

	if err := c.store.SetTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		c.metrics.Inc(MetricKeyringFailure)
		c.loginFailed(ctx, path, err)
		return err
	}

	c.notifier.Reset()
	c.metrics.Inc(MetricLoginSuccess)

	userID := ""
	if claims, inspectErr := token.Inspect(pair.AccessToken); inspectErr == nil {
		userID = claims.Subject
	}
	c.emitAudit(ctx, auditEventLoginSuccess, true, path, userID, nil, nil)
	return nil
}

func (c *Client) loginFailed(ctx context.Context, path string, err error) {
	c.metrics.Inc(MetricLoginFailure)
	c.emitAudit(ctx, auditEventLoginFailure, false, path, "", err, nil)
}

// Logout invalidates the session server-side on a best-effort basis, then
// always clears local credentials. Only a failure of the local clear is
// returned; a failed server call is recorded in audit metadata and otherwise
// ignored.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx = c.ensureRequestID(ctx)
	path := c.config.Auth.LogoutPath

	cred, _ := c.store.Snapshot()

	var serverStatus int
	var serverErr error
	if !cred.IsZero() {
		req, err := c.newBootstrapRequest(ctx, http.MethodPost, path, logoutRequest{RefreshToken: cred.Refresh})
		if err != nil {
			serverErr = err
		} else {
			// Bootstrap requests skip automatic injection; logout wants
			// the current access token attached so the server can tell
			// which session to end.
			if cred.Access != "" {
				req.Header.Set(c.config.Auth.Header, c.config.Auth.Scheme+" "+cred.Access)
			}
			resp, doErr := c.http.Do(req)
			if doErr != nil {
				serverErr = doErr
			} else {
				serverStatus = resp.StatusCode
				discardBody(resp)
			}
		}
	}

	// Local clear runs regardless of the server outcome and survives a
	// canceled caller context.
	clearErr := c.store.Clear(context.WithoutCancel(ctx))
	if clearErr != nil {
		c.metrics.Inc(MetricKeyringFailure)
	}

	c.metrics.Inc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, clearErr == nil, path, "", clearErr, func() map[string]string {
		md := map[string]string{}
		if serverStatus != 0 {
			md["server_status"] = strconv.Itoa(serverStatus)
		}
		if serverErr != nil {
			md["server_error"] = string(auditErrorCode(serverErr))
		}
		if len(md) == 0 {
			return nil
		}
		return md
	})

	return clearErr
}

// Me fetches the authenticated identity. The call runs through the full
// managed transport, so an expired access token is refreshed and the call
// replayed before this returns.
//
// Me may return an error when input validation, dependency calls, or security checks fail.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	ctx = c.ensureRequestID(ctx)
	path := c.config.Auth.MePath

	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		// A 401 surviving the transport chain means there was no session
		// to coordinate around.
		discardBody(resp)
		return nil, ErrUnauthenticated
	default:
		return nil, newAPIError(resp, path)
	}

	var ident Identity
	if err := decodeJSON(resp, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// refreshGrant performs the wire refresh call. It runs under the
// coordinator's detached context and reports the new pair; state handling
// stays with the coordinator.
func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (string, string, error) {
	path := c.config.Auth.RefreshPath
	req, err := c.newBootstrapRequest(ctx, http.MethodPost, path, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		discardBody(resp)
		return "", "", fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	default:
		return "", "", newAPIError(resp, path)
	}

	var pair tokenPairResponse
	if err := decodeJSON(resp, &pair); err != nil {
		return "", "", err
	}
	if pair.AccessToken == "" {
		return "", "", fmt.Errorf("%w: response carried no access token", ErrRefreshRejected)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

func (c *Client) newBootstrapRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	return c.NewRequest(withBootstrap(ctx), method, path, body)
}
