package constants

import "time"

// RegistrationPolicy selects what happens after the device SDK reports a failed registration.
type RegistrationPolicy string

const (
	// RegistrationManual surfaces the failure and waits for an operator to restart the bridge.
	RegistrationManual RegistrationPolicy = "manual"
	// RegistrationRetry re-requests registration with exponential backoff.
	RegistrationRetry RegistrationPolicy = "retry"
)

const (
	DefaultRegistrationMaxRetries = 5
	DefaultRegistrationBaseDelay  = 2 * time.Second
	DefaultRegistrationMaxBackoff = 60 * time.Second
)
