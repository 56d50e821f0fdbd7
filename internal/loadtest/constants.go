package loadtest

import "time"

// Retry configuration for rate limited writes.
const (
	maxAttempts = 10
	retryDelay  = 100 * time.Millisecond
)

// Reporting constants.
const (
	progressInterval     = time.Second
	maxReportedFailures  = 20
	percentageMultiplier = 100
)

// fundingTolerance bounds float drift when summing allocations.
const fundingTolerance = 1e-6
