// Package types contains common types used across the application
package types

import "time"

// ChoiceView is one choice of a contest as shown to viewers.
type ChoiceView struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Votes int64  `json:"votes"`
	Share int    `json:"share"` // rounded percent of the contest total
	Rank  int    `json:"rank"`
}

// ContestView is the public state of a contest.
type ContestView struct {
	ID      string       `json:"id"`
	Kind    string       `json:"kind"`
	Title   string       `json:"title,omitempty"`
	Total   int64        `json:"total"`
	Choices []ChoiceView `json:"choices"`
	Leader  string       `json:"leader,omitempty"`
	Draw    bool         `json:"draw"`
	AsOf    time.Time    `json:"asOf"`
}

// Stats is the service summary served on /stats.
type Stats struct {
	Backend       string `json:"backend"`
	Contests      int    `json:"contests"`
	Votes         int64  `json:"votes"`
	QueueSize     int    `json:"queueSize"`
	QueueCapacity int    `json:"queueCapacity"`
	Workers       int    `json:"workers"`
	Subscribers   int    `json:"subscribers"`
	DedupeSize    int64  `json:"dedupeSize"`
}
