package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // Base URL of the service
	ContestID string        // Contest to vote on
	Voters    int           // Distinct voter origins
	Attempts  int           // Votes each origin sends; all but the first must be refused
	Workers   int           // Number of concurrent workers
	Timeout   time.Duration // HTTP request timeout
	Settle    time.Duration // Wait before reading the final tally
	Verbose   bool          // Enable per-request logging
}

// Ballot is one vote request body.
type Ballot struct {
	ContestID string `json:"contestId"`
	Choice    string `json:"choice"`
}

// attempt is one request the workers send.
type attempt struct {
	origin string
	ballot Ballot
}

// Contest mirrors the subset of the contest view the run needs.
type Contest struct {
	ID      string   `json:"id"`
	Total   int64    `json:"total"`
	Choices []Choice `json:"choices"`
}

// Choice is one entry of a contest view.
type Choice struct {
	ID    string `json:"id"`
	Votes int64  `json:"votes"`
}

// Stats holds run statistics.
type Stats struct {
	Sent       int
	Accepted   int
	Duplicate  int
	Limited    int
	Failed     int
	Unexpected int              // voters that did not end with exactly one accepted vote
	Expected   map[string]int64 // accepted votes per choice
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
