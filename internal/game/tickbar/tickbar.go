// Package tickbar derives the read-only tick-bar render context of a combat.
package tickbar

import (
	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/status"
)

// Entry is a combatant shown on the bar.
type Entry struct {
	CombatantID string   `json:"combatant_id"`
	ActorID     string   `json:"actor_id"`
	Name        string   `json:"name"`
	Initiative  float64  `json:"initiative"`
	Acting      bool     `json:"acting"`
	Defeated    bool     `json:"defeated,omitempty"`
	OwnerIDs    []string `json:"owner_ids,omitempty"`
}

// Marker is a status-effect activation shown on a tick.
type Marker struct {
	CombatantID string `json:"combatant_id"`
	EffectID    string `json:"effect_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Level       int    `json:"level"`
}

// Bucket holds everything occupying one tick.
type Bucket struct {
	Tick       int      `json:"tick"`
	Current    bool     `json:"current"`
	Combatants []Entry  `json:"combatants"`
	Markers    []Marker `json:"markers"`
}

// Context is the render context of one combat.
type Context struct {
	CombatID    string   `json:"combat_id"`
	Round       int      `json:"round"`
	Started     bool     `json:"started"`
	CurrentTick int      `json:"current_tick"`
	ViewedTick  int      `json:"viewed_tick"`
	MinTick     int      `json:"min_tick"`
	MaxTick     int      `json:"max_tick"`
	Ticks       []Bucket `json:"ticks"`
	Wait        []Entry  `json:"wait"`
	KeepReady   []Entry  `json:"keep_ready"`
}

// Build derives the context of c from its schedule s. Each tick in
// [s.MinTick, s.MaxTick] gets a bucket with the visible, non-defeated
// combatants whose rounded initiative equals it and the activation markers.
// Waiting and keeping-ready combatants go to their own lists.
//
// Postcondition: len(Ticks) == s.MaxTick - s.MinTick + 1.
func Build(c *combat.Combat, s status.Schedule, viewedTick int) Context {
	ctx := Context{
		CombatID:    c.ID,
		Round:       c.Round,
		Started:     c.Started,
		CurrentTick: s.CurrentTick,
		ViewedTick:  viewedTick,
		MinTick:     s.MinTick,
		MaxTick:     s.MaxTick,
		Ticks:       make([]Bucket, 0, s.MaxTick-s.MinTick+1),
		Wait:        []Entry{},
		KeepReady:   []Entry{},
	}

	byTick := map[int][]Entry{}
	acting := c.Acting()
	for _, cbt := range c.Turns {
		if cbt.Hidden {
			continue
		}
		e := Entry{
			CombatantID: cbt.ID,
			ActorID:     cbt.Actor.ID,
			Name:        cbt.Actor.Name,
			Initiative:  cbt.Initiative.Value(),
			Acting:      c.Started && cbt == acting,
			Defeated:    cbt.Defeated,
			OwnerIDs:    cbt.Actor.OwnerIDs,
		}
		switch cbt.Initiative.Kind() {
		case combat.KindWaiting:
			ctx.Wait = append(ctx.Wait, e)
		case combat.KindKeepingReady:
			ctx.KeepReady = append(ctx.KeepReady, e)
		case combat.KindScheduled:
			if cbt.Defeated {
				continue
			}
			tick, _ := cbt.Initiative.Tick()
			byTick[tick] = append(byTick[tick], e)
		}
	}

	for tick := s.MinTick; tick <= s.MaxTick; tick++ {
		b := Bucket{
			Tick:       tick,
			Current:    tick == s.CurrentTick,
			Combatants: byTick[tick],
			Markers:    []Marker{},
		}
		if b.Combatants == nil {
			b.Combatants = []Entry{}
		}
		for _, tok := range s.MarkersAt(tick) {
			b.Markers = append(b.Markers, Marker{
				CombatantID: tok.CombatantID,
				EffectID:    tok.EffectID,
				Name:        tok.Name,
				Description: tok.Description,
				Level:       tok.Level,
			})
		}
		ctx.Ticks = append(ctx.Ticks, b)
	}
	return ctx
}

// Compose builds the schedule and context of c and moves v onto it.
func Compose(c *combat.Combat, h status.Horizon, v *Viewer) (Context, status.Schedule) {
	s := status.Build(c, h)
	viewed := v.Sync(c.ID, s.CurrentTick, s.MaxTick)
	return Build(c, s, viewed), s
}
