// Package token performs client-side structural inspection of LIMS access tokens to
// read expiry and subject claims without verifying signatures. Authenticity is always
// the server's decision; nothing in this package makes a token trusted.
package token
