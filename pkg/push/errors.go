package push

import "errors"

// Fatal errors stop a dispatch before or during resolution. ErrNoRecipients is
// not fatal but still ends the dispatch unsuccessfully.
var (
	ErrMissingConfiguration = errors.New("missing service account configuration")
	ErrMalformedCredential  = errors.New("malformed service account credential")
	ErrInvalidKeyFormat     = errors.New("invalid private key format")
	ErrTokenAcquisition     = errors.New("token acquisition failed")
	ErrStoreUnavailable     = errors.New("recipient store unavailable")
	ErrGatewayUnavailable   = errors.New("messaging gateway unavailable")
	ErrNoRecipients         = errors.New("no tokens found")
)

// ErrEndpointUnregistered is reported for a single delivery whose device token
// the gateway no longer accepts. It never fails a dispatch.
var ErrEndpointUnregistered = errors.New("delivery endpoint unregistered")
