package loadgen

import "time"

// Worker configuration constants.
const (
	workerChannelMultiplier = 2
	progressInterval        = time.Second
	percentageMultiplier    = 100
)

// Outcome labels for a single vote request.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeLimited   = "rate_limited"
	outcomeFailed    = "failed"
)
