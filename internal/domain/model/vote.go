package model

import "time"

// Ballot is a single vote request after the transport layer resolved the
// voter origin.
type Ballot struct {
	ContestID string
	Choice    string
	Origin    string
}

// VoteRecord is the immutable audit entry written for every accepted vote.
// At most one exists per (ContestID, Origin).
type VoteRecord struct {
	ID        string
	ContestID string
	Choice    string
	Origin    string
	VotedAt   time.Time
}

// ContestUpdate announces that a contest's counters changed.
type ContestUpdate struct {
	ContestID string
	Choice    string
	At        time.Time
}
