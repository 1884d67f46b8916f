package tickbar

import "sync"

// Viewer is the viewedTick cursor of one client. It never falls behind the
// current tick.
type Viewer struct {
	mu       sync.Mutex
	viewport int
	combatID string
	viewed   int
	current  int
	maxTick  int
}

// NewViewer creates a Viewer showing viewportTicks ticks at a time.
//
// Precondition: viewportTicks > 0.
func NewViewer(viewportTicks int) *Viewer {
	return &Viewer{viewport: max(viewportTicks, 1)}
}

// ViewedTick returns the cursor.
func (v *Viewer) ViewedTick() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewed
}

// Sync moves the cursor onto a new authoritative state. A different combat
// resets the cursor to 0 before clamping.
//
// Postcondition: returned value >= currentTick.
func (v *Viewer) Sync(combatID string, currentTick, maxTick int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if combatID != v.combatID {
		v.combatID = combatID
		v.viewed = 0
	}
	v.current, v.maxTick = currentTick, maxTick
	v.clamp()
	return v.viewed
}

// StepForward pans half a viewport later.
func (v *Viewer) StepForward() int { return v.step(1) }

// StepBackward pans half a viewport earlier.
func (v *Viewer) StepBackward() int { return v.step(-1) }

func (v *Viewer) step(dir int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewed += dir * max(v.viewport/2, 1)
	v.clamp()
	return v.viewed
}

// clamp keeps the viewport within [current, maxTick-viewport+1]; the lower
// bound wins when the range is empty.
func (v *Viewer) clamp() {
	v.viewed = min(v.viewed, v.maxTick-v.viewport+1)
	v.viewed = max(v.viewed, v.current)
}
