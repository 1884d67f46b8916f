// Package dice provides the randomness abstraction and roll-result types used
// by check evaluation and initiative rolls.
package dice

import "fmt"

// RollResult holds the full audit trail for a single dice roll evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "4d10kh2+12"
	Rolled     []int  // every die rolled, in roll order
	Dice       []int  // dice counted toward the total (all of Rolled unless kh applies)
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the sum of the counted dice plus the modifier.
//
// Postcondition: return value == sum(r.Dice) + r.Modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String returns a human-readable audit string in the format:
//
//	"4d10kh2+3 → [2 9 7 4] keep [9 7] +3 = 19"
//
// The keep segment is omitted when every rolled die counts.
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	rolled := r.Rolled
	if rolled == nil {
		rolled = r.Dice
	}
	keep := ""
	if len(r.Dice) != len(rolled) {
		keep = fmt.Sprintf(" keep %v", r.Dice)
	}
	return fmt.Sprintf("%s → %v%s %+d = %d", r.Expression, rolled, keep, r.Modifier, r.Total())
}

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}
