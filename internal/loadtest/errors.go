package loadtest

import "errors"

// Sentinel errors returned by Run.
var (
	ErrInvalidConfig = errors.New("invalid load test config")
	ErrUnhealthy     = errors.New("service health check failed")
	ErrVerification  = errors.New("verification failed")
)
