package config

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/arena/internal/domain/model"
)

// SeedContest is the file shape of a contest to create on start.
type SeedContest struct {
	ID      string       `koanf:"id"`
	Kind    string       `koanf:"kind"`
	Title   string       `koanf:"title"`
	Choices []SeedChoice `koanf:"choices"`
}

// SeedChoice is one choice of a SeedContest.
type SeedChoice struct {
	ID    string `koanf:"id"`
	Label string `koanf:"label"`
}

// LoadSeed reads contests from a YAML file of the form
//
//	contests:
//	  - id: battle-1
//	    kind: battle
//	    choices: [{id: A, label: Ana}, {id: B, label: Ben}]
//
// Every contest is validated; counters always start at zero.
func LoadSeed(_ context.Context, path string) ([]model.Contest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: seed %s: %w", ErrLoadConfig, path, err)
	}

	var seeds []SeedContest
	if err := k.UnmarshalWithConf("contests", &seeds, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: seed %s: %w", ErrLoadConfig, path, err)
	}

	out := make([]model.Contest, 0, len(seeds))
	seen := make(map[string]struct{}, len(seeds))
	for i, s := range seeds {
		c := s.toModel()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: seed contest %d: %w", ErrInvalidConfig, i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: seed contest %q listed twice", ErrInvalidConfig, c.ID)
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (s SeedContest) toModel() model.Contest {
	choices := make([]model.Choice, len(s.Choices))
	for i, ch := range s.Choices {
		choices[i] = model.Choice{ID: ch.ID, Label: ch.Label}
	}
	return model.Contest{
		ID:      s.ID,
		Kind:    model.Kind(s.Kind),
		Title:   s.Title,
		Choices: choices,
	}
}
