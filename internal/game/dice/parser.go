package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expressions used by the Splittermond ruleset.
const (
	// ExprStandard is the standard check roll.
	ExprStandard = "2d10"
	// ExprRisk is the risk roll: four dice, the two highest count.
	ExprRisk = "4d10kh2"
	// ExprSafety is the safety roll: two dice, the highest counts.
	ExprSafety = "2d10kh1"
	// ExprInitiative is subtracted from an actor's initiative value.
	ExprInitiative = "1d6"
)

// Expression represents a parsed dice expression ready to be rolled.
// Precondition: Count >= 1, Sides >= 2 after successful Parse.
type Expression struct {
	Raw         string // original input string
	Count       int    // number of dice
	Sides       int    // faces per die
	Modifier    int    // flat modifier (may be negative)
	KeepHighest int    // if > 0, keep only the N highest dice (e.g. 4d10kh2)
}

// "W" (Würfel) is accepted as a synonym for "d" so German notation like
// "1W6" parses the same as "1d6".
var exprPattern = regexp.MustCompile(`^(\d*)[dw](\d+)(?:kh(\d+))?([+-]\d+)?$`)

// Parse parses a dice expression string into an Expression.
// Supported forms: "d10", "2d10", "2d10+3", "1W6", "4d10kh2", "4d10kh2-1".
//
// Precondition: expr must be a non-empty string.
// Postcondition: Returns a valid Expression or a descriptive error.
func Parse(expr string) (Expression, error) {
	if expr == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	s := strings.ToLower(strings.ReplaceAll(expr, " ", ""))
	m := exprPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: malformed expression %q", expr)
	}

	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: %w", expr, err)
		}
		if n <= 0 {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: must be >= 1", expr)
		}
		count = n
	}

	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q: %w", expr, err)
	}
	if sides < 2 {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q: must be >= 2", expr)
	}

	keep := 0
	if m[3] != "" {
		keep, err = strconv.Atoi(m[3])
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid kh value in %q: %w", expr, err)
		}
		if keep <= 0 || keep >= count {
			return Expression{}, fmt.Errorf("dice: kh value %d must be > 0 and < count %d in %q", keep, count, expr)
		}
	}

	modifier := 0
	if m[4] != "" {
		modifier, err = strconv.Atoi(m[4])
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
	}

	return Expression{
		Raw:         expr,
		Count:       count,
		Sides:       sides,
		Modifier:    modifier,
		KeepHighest: keep,
	}, nil
}

// WithModifier returns a copy of e with delta added to the flat modifier.
// Raw is rewritten so audit strings show the effective expression.
func (e Expression) WithModifier(delta int) Expression {
	out := e
	out.Modifier += delta
	base := fmt.Sprintf("%dd%d", e.Count, e.Sides)
	if e.KeepHighest > 0 {
		base += fmt.Sprintf("kh%d", e.KeepHighest)
	}
	if out.Modifier != 0 {
		base += fmt.Sprintf("%+d", out.Modifier)
	}
	out.Raw = base
	return out
}
