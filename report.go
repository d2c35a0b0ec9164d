package limsclient

import (
	"time"

	"github.com/dailycafi/lims-sxdch-sub003/token"
)

type ClientReport struct {
	BaseURL              string
	Authenticated        bool
	HasRefreshToken      bool
	AccessTokenSubject   string
	AccessTokenExpiresAt time.Time
	RefreshInFlight      bool
	PendingCalls         int
	NotificationCooldown time.Duration
	ExpiryLeeway         time.Duration
	AuditEnabled         bool
	AuditDropped         uint64
	MetricsEnabled       bool
}

// Report never includes token values, only derived facts about them.
func (c *Client) Report() ClientReport {
	if c == nil {
		return ClientReport{}
	}

	cred, _ := c.store.Snapshot()
	refreshing, pending := c.rc.inflight()

	r := ClientReport{
		BaseURL:              c.config.HTTP.BaseURL,
		Authenticated:        cred.Access != "",
		HasRefreshToken:      cred.Refresh != "",
		RefreshInFlight:      refreshing,
		PendingCalls:         pending,
		NotificationCooldown: c.config.Notify.Cooldown,
		ExpiryLeeway:         c.config.Refresh.ExpiryLeeway,
		AuditEnabled:         c.config.Audit.Enabled,
		AuditDropped:         c.AuditDropped(),
		MetricsEnabled:       c.config.Metrics.Enabled,
	}

	if cred.Access != "" {
		if claims, err := token.Inspect(cred.Access); err == nil {
			r.AccessTokenSubject = claims.Subject
			r.AccessTokenExpiresAt = claims.ExpiresAt
		}
	}

	return r
}
