package status

import (
	"sort"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
)

// Horizon bounds how far past the action the schedule extends.
type Horizon struct {
	// Floor is the smallest MaxTick ever produced.
	Floor int
	// Padding is added past the latest initiative and the latest effect end.
	Padding int
}

// DefaultHorizon returns a floor of 50 and a padding of 25 ticks.
func DefaultHorizon() Horizon { return Horizon{Floor: 50, Padding: 25} }

// Schedule is the status timeline of one combat snapshot.
type Schedule struct {
	CombatID    string
	CurrentTick int
	// MinTick is the lowest tick of a visible, non-defeated scheduled
	// combatant, or 0 when there is none.
	MinTick int
	MaxTick int
	Tokens  []VirtualStatusToken
	// Markers maps a tick to the tokens activating on it, up to MaxTick.
	Markers map[int][]VirtualStatusToken

	combatants map[string]*combat.Combatant
}

// Trigger is one activation that elapsed since the last observation.
type Trigger struct {
	Tick      int
	Token     VirtualStatusToken
	Combatant *combat.Combatant
}

// Build derives the schedule of c. Hidden and defeated combatants do not move
// the horizon but their effects are still scheduled.
//
// Postcondition: MaxTick >= h.Floor and MaxTick >= MinTick.
func Build(c *combat.Combat, h Horizon) Schedule {
	s := Schedule{
		CombatID:    c.ID,
		CurrentTick: c.CurrentTick(),
		Markers:     map[int][]VirtualStatusToken{},
		combatants:  make(map[string]*combat.Combatant, len(c.Turns)),
	}

	maxTick := h.Floor
	first := true
	for _, cbt := range c.Turns {
		s.combatants[cbt.ID] = cbt
		s.Tokens = append(s.Tokens, TokensFor(cbt)...)
		if cbt.Defeated || cbt.Hidden {
			continue
		}
		tick, ok := cbt.Initiative.Tick()
		if !ok {
			continue
		}
		if first || tick < s.MinTick {
			s.MinTick = tick
			first = false
		}
		maxTick = max(maxTick, tick+h.Padding)
	}
	for _, tok := range s.Tokens {
		maxTick = max(maxTick, tok.End()+h.Padding)
	}
	s.MaxTick = max(maxTick, s.MinTick)

	for _, tok := range s.Tokens {
		for _, at := range tok.Activations() {
			if at > s.MaxTick {
				break
			}
			s.Markers[at] = append(s.Markers[at], tok)
		}
	}
	return s
}

// MarkersAt returns the tokens activating on tick.
func (s Schedule) MarkersAt(tick int) []VirtualStatusToken {
	return s.Markers[tick]
}

// Combatant returns the combatant with id from the snapshot the schedule was
// built from.
func (s Schedule) Combatant(id string) *combat.Combatant {
	return s.combatants[id]
}

// Triggered returns the activations that elapsed between lastObserved and the
// current tick for combatants accepted by owns, ordered by tick.
//
// An activation T fires when T <= MinTick, lastObserved <= T,
// lastObserved != CurrentTick and lastObserved != T.
func (s Schedule) Triggered(lastObserved int, owns func(*combat.Combatant) bool) []Trigger {
	if lastObserved == s.CurrentTick {
		return nil
	}
	var out []Trigger
	for _, tok := range s.Tokens {
		cbt := s.combatants[tok.CombatantID]
		if cbt == nil || !owns(cbt) {
			continue
		}
		for _, at := range tok.Activations() {
			if at > s.MinTick {
				break
			}
			if lastObserved <= at && lastObserved != at {
				out = append(out, Trigger{Tick: at, Token: tok, Combatant: cbt})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}
