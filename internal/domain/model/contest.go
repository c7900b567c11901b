// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Kind distinguishes the two contest shapes that accept votes.
type Kind string

const (
	// KindBattle is a head-to-head contest between two sides.
	KindBattle Kind = "battle"
	// KindChallenge is a category vote where each submission is a choice.
	KindChallenge Kind = "challenge"
)

// Battle sides.
const (
	SideA = "A"
	SideB = "B"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindBattle || k == KindChallenge
}

// Choice is one votable option of a contest together with its counter.
type Choice struct {
	ID    string
	Label string
	Votes int64
}

// Contest is a votable subject: a battle or a challenge.
type Contest struct {
	ID        string
	Kind      Kind
	Title     string
	Choices   []Choice // ordered as declared
	CreatedAt time.Time
}

// Choice returns the choice with the given id.
func (c Contest) Choice(id string) (Choice, bool) {
	for _, ch := range c.Choices {
		if ch.ID == id {
			return ch, true
		}
	}
	return Choice{}, false
}

// HasChoice reports whether id is one of the contest's choices.
func (c Contest) HasChoice(id string) bool {
	_, ok := c.Choice(id)
	return ok
}

// Total is the sum of all choice counters.
func (c Contest) Total() int64 {
	var n int64
	for _, ch := range c.Choices {
		n += ch.Votes
	}
	return n
}

// Clone returns a deep copy, safe to hand out of a store.
func (c Contest) Clone() Contest {
	out := c
	out.Choices = append([]Choice(nil), c.Choices...)
	return out
}

// Validate checks the structural rules a contest must satisfy before it is stored.
func (c Contest) Validate() error {
	if err := CheckID(c.ID); err != nil {
		return fmt.Errorf("%w: id %q %v", ErrInvalidContest, c.ID, err)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidContest, c.Kind)
	}
	if len(c.Choices) == 0 {
		return fmt.Errorf("%w: %s has no choices", ErrInvalidContest, c.ID)
	}
	seen := make(map[string]struct{}, len(c.Choices))
	for _, ch := range c.Choices {
		if err := CheckID(ch.ID); err != nil {
			return fmt.Errorf("%w: %s choice id %q %v", ErrInvalidContest, c.ID, ch.ID, err)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("%w: %s repeats choice %q", ErrInvalidContest, c.ID, ch.ID)
		}
		if ch.Votes < 0 {
			return fmt.Errorf("%w: %s choice %q has negative votes", ErrInvalidContest, c.ID, ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	if c.Kind == KindBattle {
		if len(c.Choices) != 2 || !c.HasChoice(SideA) || !c.HasChoice(SideB) {
			return fmt.Errorf("%w: battle %s must have exactly sides A and B", ErrInvalidContest, c.ID)
		}
	}
	return nil
}

// NewBattle builds a battle with zeroed counters.
func NewBattle(id, title, labelA, labelB string) Contest {
	return Contest{
		ID:    id,
		Kind:  KindBattle,
		Title: title,
		Choices: []Choice{
			{ID: SideA, Label: labelA},
			{ID: SideB, Label: labelB},
		},
	}
}

// NewChallenge builds a category contest whose choices are submission ids.
func NewChallenge(id, title string, submissions ...Choice) Contest {
	choices := make([]Choice, len(submissions))
	for i, s := range submissions {
		choices[i] = Choice{ID: s.ID, Label: s.Label}
	}
	return Contest{ID: id, Kind: KindChallenge, Title: title, Choices: choices}
}
