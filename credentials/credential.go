package credentials

// Credential is the access/refresh token pair for the current LIMS session.
//
// Credential instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Credential struct {
	Access  string
	Refresh string
}

// IsZero reports whether no credential is present at all.
func (c Credential) IsZero() bool {
	return c.Access == "" && c.Refresh == ""
}
