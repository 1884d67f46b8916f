// Package combat implements the tick-based Splittermond combat tracker: the
// initiative timeline, turn ordering and the turn-advancement state machine.
package combat

import "slices"

// StatusEffect is a status-effect item attached to an actor.
type StatusEffect struct {
	ID           string
	DefinitionID string
	Name         string
	Description  string
	Level        int
	// StartTick is the first activation; 0 when created outside an active tick.
	StartTick int
	// Interval is the number of ticks between activations.
	Interval int
	// Times is the activation count; 0 means unset.
	Times int
}

// Actor is the character or NPC behind a combatant.
type Actor struct {
	ID              string
	Name            string
	Intuition       int
	InitiativeValue int
	// PlayerOwned is true for player characters.
	PlayerOwned   bool
	OwnerIDs      []string
	StatusEffects []StatusEffect
}

// Combatant is one participant of a combat.
type Combatant struct {
	ID         string
	Seq        int
	Actor      Actor
	Initiative Initiative
	Defeated   bool
	Hidden     bool
}

// Visible reports whether the combatant is shown to players.
func (c *Combatant) Visible() bool { return !c.Hidden }

// OwnedBy reports whether userID may act for this combatant.
func (c *Combatant) OwnedBy(userID string) bool {
	return userID != "" && slices.Contains(c.Actor.OwnerIDs, userID)
}

// Clone returns a deep copy of c.
func (c *Combatant) Clone() *Combatant {
	out := *c
	out.Actor.OwnerIDs = slices.Clone(c.Actor.OwnerIDs)
	out.Actor.StatusEffects = slices.Clone(c.Actor.StatusEffects)
	return &out
}

// Combat is an ordered collection of combatants plus round and turn counters.
//
// Invariant: Turns is sorted by the ordering in order.go after every mutation.
type Combat struct {
	ID      string
	SceneID string
	Turns   []*Combatant
	// Turn is the index of the acting combatant within Turns.
	Turn int
	// Round is the tick the current round started on.
	Round   int
	Started bool
	// Version is bumped by the repository on every successful save.
	Version int64
	// NextSeq is the sequence number handed to the next added combatant.
	NextSeq int
}

// Clone returns a deep copy of c.
func (c *Combat) Clone() *Combat {
	out := *c
	out.Turns = make([]*Combatant, len(c.Turns))
	for i, cbt := range c.Turns {
		out.Turns[i] = cbt.Clone()
	}
	return &out
}

// Find returns the combatant with id, or nil.
func (c *Combat) Find(id string) *Combatant {
	for _, cbt := range c.Turns {
		if cbt.ID == id {
			return cbt
		}
	}
	return nil
}

// CurrentTick returns the tick of the first non-defeated scheduled combatant
// in turn order, or 0 when nobody is on the timeline.
func (c *Combat) CurrentTick() int {
	for _, cbt := range c.Turns {
		if cbt.Defeated {
			continue
		}
		if tick, ok := cbt.Initiative.Tick(); ok {
			return tick
		}
	}
	return 0
}

// Acting returns the combatant whose turn it is, or nil for an empty combat.
func (c *Combat) Acting() *Combatant {
	if c.Turn < 0 || c.Turn >= len(c.Turns) {
		return nil
	}
	return c.Turns[c.Turn]
}

// Start marks the combat active and seeds the round from the current tick.
//
// Postcondition: Started; Round == CurrentTick(); Turn == 0.
func (c *Combat) Start(tie TieBreaker) {
	SortTurns(c.Turns, tie)
	c.Started = true
	c.Round = c.CurrentTick()
	c.Turn = 0
}

// NextRound re-sorts the turns and makes the first entry act. It reports false
// and changes nothing when the combat has not started.
//
// Postcondition: Round == CurrentTick(); Turn == 0.
func (c *Combat) NextRound(tie TieBreaker) bool {
	if !c.Started {
		return false
	}
	SortTurns(c.Turns, tie)
	c.Round = c.CurrentTick()
	c.Turn = 0
	return true
}

// SetInitiative places combatant id at ini. Scheduled values are rounded to
// their tick and nudged in 0.01 steps past combatants already on that tick:
// later by default, earlier when placedFirst. Out-of-band states are stored
// verbatim. Returns false when id is not part of the combat.
func (c *Combat) SetInitiative(id string, ini Initiative, placedFirst bool, tie TieBreaker) bool {
	target := c.Find(id)
	if target == nil {
		return false
	}
	target.Initiative = c.place(target.ID, ini, placedFirst)
	SortTurns(c.Turns, tie)
	return true
}

func (c *Combat) place(id string, ini Initiative, placedFirst bool) Initiative {
	if !ini.IsScheduled() {
		return ini
	}
	tick := RoundTick(ini.value)
	offset := 0
	for _, o := range c.Turns {
		if o.ID == id {
			continue
		}
		otherTick, ok := o.Initiative.Tick()
		if !ok || otherTick != tick {
			continue
		}
		d := hundredths(o.Initiative.value - float64(tick))
		if placedFirst {
			d = -d
		}
		offset = max(offset, d+1)
	}
	offset = min(offset, maxNudge)
	if placedFirst {
		offset = -offset
	}
	return Scheduled(float64(tick*100+offset) / 100)
}

// AddCombatant appends a new combatant for actor with an unset initiative.
func (c *Combat) AddCombatant(id string, actor Actor, hidden bool, tie TieBreaker) *Combatant {
	cbt := &Combatant{ID: id, Seq: c.NextSeq, Actor: actor, Hidden: hidden}
	c.NextSeq++
	c.Turns = append(c.Turns, cbt)
	SortTurns(c.Turns, tie)
	return cbt
}

// RemoveCombatant drops combatant id. Returns false when it was not present.
func (c *Combat) RemoveCombatant(id string) bool {
	i := slices.IndexFunc(c.Turns, func(cbt *Combatant) bool { return cbt.ID == id })
	if i < 0 {
		return false
	}
	c.Turns = slices.Delete(c.Turns, i, i+1)
	if c.Turn >= len(c.Turns) {
		c.Turn = 0
	}
	return true
}
