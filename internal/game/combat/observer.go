package combat

// Observer is notified after a combat change has been saved. Snapshots passed
// to an Observer are private copies and may be retained.
type Observer interface {
	CombatChanged(c *Combat)
	RoundAdvanced(c *Combat)
	CombatEnded(id, sceneID string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) CombatChanged(*Combat) {}
func (NopObserver) RoundAdvanced(*Combat) {}
func (NopObserver) CombatEnded(_, _ string) {}

// Observers fans a notification out to every member in order.
type Observers []Observer

func (os Observers) CombatChanged(c *Combat) {
	for _, o := range os {
		o.CombatChanged(c.Clone())
	}
}

func (os Observers) RoundAdvanced(c *Combat) {
	for _, o := range os {
		o.RoundAdvanced(c.Clone())
	}
}

func (os Observers) CombatEnded(id, sceneID string) {
	for _, o := range os {
		o.CombatEnded(id, sceneID)
	}
}
