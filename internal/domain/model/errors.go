package model

import "errors"

// Store-level sentinel errors shared by every repository backend.
var (
	ErrContestNotFound = errors.New("contest not found")
	ErrContestExists   = errors.New("contest already exists")
	ErrUnknownChoice   = errors.New("unknown choice")
	ErrVoteExists      = errors.New("vote already recorded")
	ErrInvalidContest  = errors.New("invalid contest")
)
