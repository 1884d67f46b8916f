package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

func cbt(id string, ini combat.Initiative, intuition int, player bool) *combat.Combatant {
	return &combat.Combatant{
		ID:         id,
		Initiative: ini,
		Actor:      combat.Actor{ID: "actor-" + id, Name: id, Intuition: intuition, PlayerOwned: player},
	}
}

func ids(turns []*combat.Combatant) []string {
	out := make([]string, len(turns))
	for i, c := range turns {
		out[i] = c.ID
	}
	return out
}

func TestSortTurns_Chain(t *testing.T) {
	turns := []*combat.Combatant{
		cbt("unset", combat.Unset(), 5, false),
		cbt("ready", combat.KeepingReady(), 5, false),
		cbt("wait", combat.Waiting(), 5, false),
		cbt("late", combat.Scheduled(12), 5, false),
		cbt("npc", combat.Scheduled(8), 3, false),
		cbt("pc", combat.Scheduled(8), 3, true),
		cbt("sharp", combat.Scheduled(8), 4, false),
	}
	combat.SortTurns(turns, nil)
	assert.Equal(t, []string{"sharp", "pc", "npc", "late", "wait", "ready", "unset"}, ids(turns))
}

func TestSortTurns_DefeatedAfterLowerInitiative(t *testing.T) {
	down := cbt("down", combat.Scheduled(1), 5, true)
	down.Defeated = true
	turns := []*combat.Combatant{down, cbt("up", combat.Scheduled(40), 1, false), cbt("waiting", combat.Waiting(), 1, false)}
	combat.SortTurns(turns, nil)
	assert.Equal(t, []string{"up", "waiting", "down"}, ids(turns))
	assert.Equal(t, combat.Scheduled(1), down.Initiative, "stored initiative must not change")
}

func TestSortTurns_SequenceBreaksTrueTies(t *testing.T) {
	a := cbt("a", combat.Scheduled(5), 2, false)
	b := cbt("b", combat.Scheduled(5), 2, false)
	a.Seq, b.Seq = 1, 0
	turns := []*combat.Combatant{a, b}
	combat.SortTurns(turns, combat.SequenceTieBreaker{})
	assert.Equal(t, []string{"b", "a"}, ids(turns))
}

func TestSortTurns_RandomTieBreakerOnlyAffectsTrueTies(t *testing.T) {
	tie := combat.RandomTieBreaker{Src: dice.NewSeededSource(7)}
	for range 20 {
		turns := []*combat.Combatant{
			cbt("x", combat.Scheduled(5), 2, false),
			cbt("y", combat.Scheduled(5), 2, false),
			cbt("first", combat.Scheduled(4), 0, false),
		}
		combat.SortTurns(turns, tie)
		assert.Equal(t, "first", turns[0].ID)
		assert.ElementsMatch(t, []string{"x", "y"}, ids(turns[1:]))
	}
}

func TestSortTurns_Property_DefeatedLast(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		turns := make([]*combat.Combatant, n)
		for i := range turns {
			c := cbt(string(rune('a'+i)), combat.Scheduled(rapid.Float64Range(-20, 60).Draw(rt, "ini")), rapid.IntRange(0, 6).Draw(rt, "int"), rapid.Bool().Draw(rt, "pc"))
			c.Defeated = rapid.Bool().Draw(rt, "defeated")
			c.Seq = i
			turns[i] = c
		}
		combat.SortTurns(turns, nil)
		seenDefeated := false
		for i, c := range turns {
			if c.Defeated {
				seenDefeated = true
			} else if seenDefeated {
				rt.Fatalf("active combatant %s sorted after a defeated one", c.ID)
			}
			if i > 0 && !c.Defeated && !turns[i-1].Defeated {
				assert.LessOrEqual(rt, turns[i-1].Initiative.Value(), c.Initiative.Value())
			}
		}
	})
}
