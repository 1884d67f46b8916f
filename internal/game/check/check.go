// Package check evaluates Splittermond skill checks: success, degree of
// success, fumbles and criticals.
package check

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

// RollType selects how many dice are rolled and which of them count.
type RollType string

const (
	RollStandard RollType = "standard"
	RollRisk     RollType = "risk"
	RollSafety   RollType = "safety"
)

// Expression returns the dice expression for rt.
//
// Postcondition: Returns an error for unknown roll types.
func (rt RollType) Expression() (string, error) {
	switch rt {
	case RollStandard, "":
		return dice.ExprStandard, nil
	case RollRisk:
		return dice.ExprRisk, nil
	case RollSafety:
		return dice.ExprSafety, nil
	default:
		return "", fmt.Errorf("check: unknown roll type %q", string(rt))
	}
}

// Rules holds the tunable thresholds of check evaluation.
type Rules struct {
	// FumbleThreshold: the two lowest dice summing to at most this is a fumble.
	FumbleThreshold int
	// CritThreshold: the counted dice summing to at least this is a critical.
	CritThreshold int
	// CritBonus is added to the degree of success on a critical.
	CritBonus int
	// FumblePenalty is subtracted from the degree of success on a fumble.
	FumblePenalty int
	// MaxMessageDegree caps the degree used to pick the message key.
	MaxMessageDegree int
}

// DefaultRules returns the rulebook thresholds.
func DefaultRules() Rules {
	return Rules{
		FumbleThreshold:  3,
		CritThreshold:    19,
		CritBonus:        3,
		FumblePenalty:    3,
		MaxMessageDegree: 5,
	}
}

// Input is everything Evaluate needs; it carries no hidden state.
type Input struct {
	Roll        dice.RollResult
	SkillPoints int
	Difficulty  int
	RollType    RollType
	Rules       Rules
}

// Result is the outcome of a check.
type Result struct {
	Difficulty      int
	Succeeded       bool
	IsFumble        bool
	IsCrit          bool
	DegreeOfSuccess int
	// MessageKey is the localization key describing the degree of success.
	MessageKey string
	Roll       dice.RollResult
}

// Evaluate computes the outcome of a rolled check.
//
// Precondition: in.Roll.Rolled (or Dice) holds the individual die results.
// Postcondition: SkillPoints < 1 implies DegreeOfSuccess <= 0; a fumble
// implies !Succeeded and DegreeOfSuccess <= -1; a failed check never carries
// a positive DegreeOfSuccess.
func Evaluate(in Input) Result {
	rules := in.Rules
	if rules == (Rules{}) {
		rules = DefaultRules()
	}

	difference := in.Roll.Total() - in.Difficulty
	base := clampUnskilled(degree(difference), in.SkillPoints)

	rolled := in.Roll.Rolled
	if rolled == nil {
		rolled = in.Roll.Dice
	}

	fumble := in.RollType != RollSafety && len(rolled) >= 2 && sumLowest(rolled, 2) <= rules.FumbleThreshold
	crit := sumHighest(in.Roll.Dice, 2) >= rules.CritThreshold

	// A fumble overrides everything; only a succeeding crit earns the bonus.
	dos := base
	switch {
	case fumble:
		dos = min(base-rules.FumblePenalty, -1)
	case crit && difference >= 0:
		dos = clampUnskilled(base+rules.CritBonus, in.SkillPoints)
	}

	succeeded := difference >= 0 && !fumble

	return Result{
		Difficulty:      in.Difficulty,
		Succeeded:       succeeded,
		IsFumble:        fumble,
		IsCrit:          crit,
		DegreeOfSuccess: dos,
		MessageKey:      MessageKey(succeeded, dos, rules.MaxMessageDegree),
		Roll:            in.Roll,
	}
}

// An unskilled check never generates a positive degree of success.
func clampUnskilled(dos, skillPoints int) int {
	if skillPoints < 1 && dos > 0 {
		return 0
	}
	return dos
}

// degree is sign(d) * floor(|d| / 3).
func degree(d int) int {
	if d < 0 {
		return -((-d) / 3)
	}
	return d / 3
}

// MessageKey selects the localization key for a degree of success.
func MessageKey(succeeded bool, dos, maxDegree int) string {
	n := dos
	if n < 0 {
		n = -n
	}
	if maxDegree > 0 && n > maxDegree {
		n = maxDegree
	}
	if succeeded {
		return fmt.Sprintf("splittermond.successMessage.%d", n)
	}
	return fmt.Sprintf("splittermond.failMessage.%d", n)
}

func sumLowest(ds []int, n int) int {
	s := sortedCopy(ds)
	return sum(s[:min(n, len(s))])
}

func sumHighest(ds []int, n int) int {
	s := sortedCopy(ds)
	return sum(s[max(len(s)-n, 0):])
}

func sortedCopy(ds []int) []int {
	out := make([]int, len(ds))
	copy(out, ds)
	sort.Ints(out)
	return out
}

func sum(ds []int) int {
	t := 0
	for _, d := range ds {
		t += d
	}
	return t
}
