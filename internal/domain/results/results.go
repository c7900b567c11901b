// Package results turns stored contest counters into the view served to
// voters: shares, ranks and the current leader.
package results

import (
	"sort"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
)

// Compute builds the public view of c as of at.
//
// Shares are whole percents rounded half up, so they may not sum to 100.
// Ranks are dense: tied choices share a rank and the next rank follows
// directly. Leader is set only when one choice is strictly ahead; Draw is
// set when two or more choices tie for the lead on a non-zero total.
func Compute(c model.Contest, at time.Time) types.ContestView {
	total := c.Total()
	view := types.ContestView{
		ID:      c.ID,
		Kind:    string(c.Kind),
		Title:   c.Title,
		Total:   total,
		Choices: make([]types.ChoiceView, len(c.Choices)),
		AsOf:    at.UTC(),
	}

	for i, ch := range c.Choices {
		view.Choices[i] = types.ChoiceView{
			ID:    ch.ID,
			Label: ch.Label,
			Votes: ch.Votes,
			Share: Share(ch.Votes, total),
		}
	}

	order := make([]int, len(c.Choices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.Choices[order[a]].Votes > c.Choices[order[b]].Votes
	})

	rank := 0
	var prev int64 = -1
	for _, idx := range order {
		if v := c.Choices[idx].Votes; v != prev {
			rank++
			prev = v
		}
		view.Choices[idx].Rank = rank
	}

	if len(order) == 0 || total == 0 {
		return view
	}
	top := c.Choices[order[0]].Votes
	if len(order) > 1 && c.Choices[order[1]].Votes == top {
		view.Draw = true
		return view
	}
	view.Leader = c.Choices[order[0]].ID
	return view
}

// Share returns votes as a whole percent of total, rounded half up.
func Share(votes, total int64) int {
	if total <= 0 || votes <= 0 {
		return 0
	}
	return int((votes*200 + total) / (2 * total))
}
