package feed

import "errors"

// Fatal errors. Any of these aborts the current sync run.
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrAuthentication    = errors.New("authentication failed")
	ErrTransient         = errors.New("transient upstream failure")
)
