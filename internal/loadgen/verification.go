package loadgen

import (
	"errors"
	"fmt"
)

// ErrMismatch is returned when the server's tally disagrees with the
// responses the run observed.
var ErrMismatch = errors.New("tally mismatch")

// verifyResults compares the tally delta against the accepted responses.
// Other clients voting on the same contest during the run will show up here.
func verifyResults(cfg *Config, before, after Contest, stats *Stats) error {
	var errs []error

	if stats.Failed > 0 || stats.Limited > 0 {
		errs = append(errs, fmt.Errorf("%d requests failed and %d were rate limited", stats.Failed, stats.Limited))
	}
	if stats.Unexpected > 0 {
		errs = append(errs, fmt.Errorf("%d voters were not counted exactly once", stats.Unexpected))
	}
	if want := cfg.Voters * (cfg.Attempts - 1); stats.Duplicate != want && stats.Failed == 0 && stats.Limited == 0 {
		errs = append(errs, fmt.Errorf("saw %d duplicate refusals, want %d", stats.Duplicate, want))
	}

	if delta := after.Total - before.Total; delta != int64(stats.Accepted) {
		errs = append(errs, fmt.Errorf("total moved by %d, accepted %d", delta, stats.Accepted))
	}

	prior := make(map[string]int64, len(before.Choices))
	for _, ch := range before.Choices {
		prior[ch.ID] = ch.Votes
	}
	for _, ch := range after.Choices {
		if ch.Votes < prior[ch.ID] {
			errs = append(errs, fmt.Errorf("choice %s went down from %d to %d", ch.ID, prior[ch.ID], ch.Votes))
			continue
		}
		if delta := ch.Votes - prior[ch.ID]; delta != stats.Expected[ch.ID] {
			errs = append(errs, fmt.Errorf("choice %s moved by %d, accepted %d", ch.ID, delta, stats.Expected[ch.ID]))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMismatch, errors.Join(errs...))
	}
	return nil
}
