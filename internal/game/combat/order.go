package combat

import (
	"cmp"
	"slices"

	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

// TieBreaker draws the last-resort key for combatants that tie on every rule.
// SortTurns draws once per combatant per pass so the order is consistent.
type TieBreaker interface {
	Draw(c *Combatant) int
}

// RandomTieBreaker resolves true ties by chance.
type RandomTieBreaker struct {
	Src dice.Source
}

// Draw returns a random key.
func (r RandomTieBreaker) Draw(*Combatant) int { return r.Src.Intn(1 << 30) }

// SequenceTieBreaker resolves true ties by the order combatants joined.
type SequenceTieBreaker struct{}

// Draw returns the combatant's sequence number.
func (SequenceTieBreaker) Draw(c *Combatant) int { return c.Seq }

// Compare orders a before b (negative), after (positive) or reports a true tie
// (zero). The chain is: defeated combatants last, initiative state, lower tick
// first, higher intuition first, player before non-player.
// Stored initiatives are never modified.
func Compare(a, b *Combatant) int {
	if a.Defeated != b.Defeated {
		if a.Defeated {
			return 1
		}
		return -1
	}
	if r := cmp.Compare(a.Initiative.kind.rank(), b.Initiative.kind.rank()); r != 0 {
		return r
	}
	if a.Initiative.kind == KindScheduled {
		if r := cmp.Compare(a.Initiative.value, b.Initiative.value); r != 0 {
			return r
		}
	}
	if r := cmp.Compare(b.Actor.Intuition, a.Actor.Intuition); r != 0 {
		return r
	}
	if a.Actor.PlayerOwned != b.Actor.PlayerOwned {
		if a.Actor.PlayerOwned {
			return -1
		}
		return 1
	}
	return 0
}

// SortTurns sorts turns in place by Compare, breaking true ties with tie.
// A nil tie falls back to SequenceTieBreaker.
func SortTurns(turns []*Combatant, tie TieBreaker) {
	if tie == nil {
		tie = SequenceTieBreaker{}
	}
	keys := make(map[*Combatant]int, len(turns))
	for _, c := range turns {
		keys[c] = tie.Draw(c)
	}
	slices.SortStableFunc(turns, func(a, b *Combatant) int {
		if r := Compare(a, b); r != 0 {
			return r
		}
		return cmp.Compare(keys[a], keys[b])
	})
}
