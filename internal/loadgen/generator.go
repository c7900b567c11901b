package loadgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"net/netip"

	"github.com/google/uuid"
)

// originPrefix derives a run-unique unique local IPv6 /64 from a random
// UUID so repeated runs against one server do not collide.
func originPrefix() [8]byte {
	id := uuid.New()
	var p [8]byte
	p[0] = 0xfd
	copy(p[1:], id[:7])
	return p
}

// voterOrigin returns the address of voter n under prefix.
func voterOrigin(prefix [8]byte, n int) string {
	var b [16]byte
	copy(b[:8], prefix[:])
	binary.BigEndian.PutUint64(b[8:], uint64(n)+1)
	return netip.AddrFrom16(b).String()
}

// pickChoice returns a uniformly random choice id.
func pickChoice(choices []Choice) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("contest has no choices")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(choices))))
	if err != nil {
		return "", err
	}
	return choices[n.Int64()].ID, nil
}

// generateAttempts lays out every request of the run. Attempts of one voter
// are adjacent, so with several workers they race each other on the server.
func generateAttempts(cfg *Config, contest Contest) ([]attempt, error) {
	prefix := originPrefix()
	out := make([]attempt, 0, cfg.Voters*cfg.Attempts)
	for v := 0; v < cfg.Voters; v++ {
		origin := voterOrigin(prefix, v)
		for a := 0; a < cfg.Attempts; a++ {
			choice, err := pickChoice(contest.Choices)
			if err != nil {
				return nil, err
			}
			out = append(out, attempt{
				origin: origin,
				ballot: Ballot{ContestID: contest.ID, Choice: choice},
			})
		}
	}
	return out, nil
}
