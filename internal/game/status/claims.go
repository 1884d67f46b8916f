package status

import "sync"

type activation struct {
	combatantID string
	effectID    string
	tick        int
}

// Claims records which activations have already been announced so that
// several watchers observing the same combat notify each activation once.
// It is safe for concurrent use.
type Claims struct {
	mu   sync.Mutex
	seen map[string]map[activation]struct{}
}

// NewClaims creates an empty Claims set.
func NewClaims() *Claims {
	return &Claims{seen: make(map[string]map[activation]struct{})}
}

// Claim reports whether the caller is the first to announce tr in combatID.
func (c *Claims) Claim(combatID string, tr Trigger) bool {
	key := activation{combatantID: tr.Token.CombatantID, effectID: tr.Token.EffectID, tick: tr.Tick}
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.seen[combatID]
	if !ok {
		set = make(map[activation]struct{})
		c.seen[combatID] = set
	}
	if _, dup := set[key]; dup {
		return false
	}
	set[key] = struct{}{}
	return true
}

// Release drops every claim of combatID.
func (c *Claims) Release(combatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, combatID)
}
