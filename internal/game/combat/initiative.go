package combat

import (
	"fmt"
	"math"
)

// Host encodings of the two out-of-band queues.
const (
	WaitValue      = 10000.0
	KeepReadyValue = 20000.0
)

// maxNudge bounds the same-tick offset (in hundredths) so a nudged value
// always rounds back to its tick.
const maxNudge = 49

// InitiativeKind tags an Initiative value.
type InitiativeKind int

const (
	// KindUnset is a combatant that has not rolled or whose value was cleared.
	KindUnset InitiativeKind = iota
	// KindScheduled is a real position on the tick timeline.
	KindScheduled
	// KindWaiting is a combatant holding its action.
	KindWaiting
	// KindKeepingReady is a combatant waiting for a trigger it announced.
	KindKeepingReady
)

func (k InitiativeKind) String() string {
	switch k {
	case KindScheduled:
		return "scheduled"
	case KindWaiting:
		return "waiting"
	case KindKeepingReady:
		return "keep_ready"
	default:
		return "unset"
	}
}

// rank orders kinds: every scheduled tick sorts before waiting, waiting before
// keeping ready, and unset last.
func (k InitiativeKind) rank() int {
	switch k {
	case KindScheduled:
		return 0
	case KindWaiting:
		return 1
	case KindKeepingReady:
		return 2
	default:
		return 3
	}
}

// Initiative is a combatant's position on the shared tick timeline, or one of
// the out-of-band states. The zero value is unset.
type Initiative struct {
	kind  InitiativeKind
	value float64
}

// Scheduled returns a timeline position. NaN and infinities yield Unset.
func Scheduled(tick float64) Initiative {
	if math.IsNaN(tick) || math.IsInf(tick, 0) {
		return Initiative{}
	}
	return Initiative{kind: KindScheduled, value: tick}
}

// Waiting returns the waiting state.
func Waiting() Initiative { return Initiative{kind: KindWaiting} }

// KeepingReady returns the keeping-ready state.
func KeepingReady() Initiative { return Initiative{kind: KindKeepingReady} }

// Unset returns the unset state.
func Unset() Initiative { return Initiative{} }

// FromRaw decodes a host initiative number: the two sentinels map to their
// states, NaN to Unset, and anything else to Scheduled.
func FromRaw(v float64) Initiative {
	switch {
	case v == WaitValue:
		return Waiting()
	case v == KeepReadyValue:
		return KeepingReady()
	default:
		return Scheduled(v)
	}
}

// Kind returns the state tag.
func (i Initiative) Kind() InitiativeKind { return i.kind }

// IsScheduled reports whether i is a timeline position.
func (i Initiative) IsScheduled() bool { return i.kind == KindScheduled }

// Value returns the stored timeline position; 0 for non-scheduled states.
func (i Initiative) Value() float64 {
	if i.kind != KindScheduled {
		return 0
	}
	return i.value
}

// Tick returns the integer tick i occupies. ok is false for non-scheduled states.
func (i Initiative) Tick() (tick int, ok bool) {
	if i.kind != KindScheduled {
		return 0, false
	}
	return RoundTick(i.value), true
}

// Raw encodes i in the host representation.
func (i Initiative) Raw() float64 {
	switch i.kind {
	case KindScheduled:
		return i.value
	case KindWaiting:
		return WaitValue
	case KindKeepingReady:
		return KeepReadyValue
	default:
		return math.NaN()
	}
}

func (i Initiative) String() string {
	if i.kind == KindScheduled {
		return fmt.Sprintf("%.2f", i.value)
	}
	return i.kind.String()
}

// RoundTick rounds a timeline value to its tick, halves rounding up.
func RoundTick(v float64) int {
	return int(math.Floor(v + 0.5))
}

// hundredths returns v in hundredths of a tick.
func hundredths(v float64) int {
	return int(math.Round(v * 100))
}

// Restore rebuilds an Initiative from a stored kind and value. The value is
// ignored for every kind except KindScheduled.
func Restore(kind InitiativeKind, value float64) Initiative {
	switch kind {
	case KindScheduled:
		return Scheduled(value)
	case KindWaiting:
		return Waiting()
	case KindKeepingReady:
		return KeepingReady()
	default:
		return Unset()
	}
}
