// Package status schedules recurring status effects on the combat tick
// timeline and emits one-time notifications when activations elapse.
package status

import "github.com/cory-johannsen/splittermond/internal/game/combat"

// DefaultTimes bounds effects whose activation count is unset.
const DefaultTimes = 90

// Effect is the status-effect item attached to an actor.
type Effect = combat.StatusEffect

// VirtualStatusToken is the scheduling view of an Effect. It is derived on
// demand and never stored.
type VirtualStatusToken struct {
	CombatantID  string
	EffectID     string
	DefinitionID string
	Name         string
	Description  string
	Level        int
	StartTick    int
	Interval     int
	Times        int
}

// TokenFor projects e owned by combatantID. ok is false for effects that do
// not take part in scheduling.
func TokenFor(combatantID string, e Effect) (VirtualStatusToken, bool) {
	if e.StartTick <= 0 || e.Interval <= 0 {
		return VirtualStatusToken{}, false
	}
	times := e.Times
	if times <= 0 {
		times = DefaultTimes
	}
	return VirtualStatusToken{
		CombatantID:  combatantID,
		EffectID:     e.ID,
		DefinitionID: e.DefinitionID,
		Name:         e.Name,
		Description:  e.Description,
		Level:        e.Level,
		StartTick:    e.StartTick,
		Interval:     e.Interval,
		Times:        times,
	}, true
}

// TokensFor projects every schedulable effect of c.
func TokensFor(c *combat.Combatant) []VirtualStatusToken {
	var out []VirtualStatusToken
	for _, e := range c.Actor.StatusEffects {
		if tok, ok := TokenFor(c.ID, e); ok {
			out = append(out, tok)
		}
	}
	return out
}

// Activations returns StartTick + k*Interval for k in [0, Times).
func (t VirtualStatusToken) Activations() []int {
	out := make([]int, t.Times)
	for k := range out {
		out[k] = t.StartTick + k*t.Interval
	}
	return out
}

// End returns StartTick + Times*Interval, the tick after the last activation
// interval.
func (t VirtualStatusToken) End() int {
	return t.StartTick + t.Times*t.Interval
}
