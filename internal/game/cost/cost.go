// Package cost parses and aggregates Splittermond resource costs written in the
// compact rules notation ("4V2", "K2V1", "8").
package cost

import (
	"fmt"
	"strconv"
	"strings"
)

// Cost is an immutable resource expense.
//
// Invariant: all components are >= 0.
type Cost struct {
	// Exhausted points return after a rest.
	Exhausted int
	// Consumed points only return through regeneration.
	Consumed int
	// Channeled points stay bound for as long as the effect is maintained.
	Channeled int
	// Health marks a cost against the health pool instead of focus.
	Health bool
}

// ParseError reports malformed cost notation.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cost: %s at position %d in %q", e.Msg, e.Pos, e.Input)
}

// Parse parses a focus cost. An expression is one or more "+"-separated terms
// of the form [K]<n>[V<m>]; a leading K marks n as channeled instead of
// exhausted and the V part is always consumed.
//
// Postcondition: Returns the component-wise sum of all terms, or a *ParseError.
func Parse(s string) (Cost, error) {
	return parse(s, false)
}

// ParseHealth parses s with the same grammar as Parse into a health cost.
func ParseHealth(s string) (Cost, error) {
	return parse(s, true)
}

// MustParse parses s and panics on error. Intended for costs embedded in code.
func MustParse(s string) Cost {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(s string, health bool) (Cost, error) {
	out := Cost{Health: health}
	offset := 0
	for _, raw := range strings.Split(s, "+") {
		term, err := parseTerm(s, raw, offset)
		if err != nil {
			return Cost{}, err
		}
		out.Exhausted += term.Exhausted
		out.Consumed += term.Consumed
		out.Channeled += term.Channeled
		offset += len(raw) + 1
	}
	return out, nil
}

// parseTerm parses one [K]<n>[V<m>] term. offset is the position of raw in
// input, used for error reporting.
func parseTerm(input, raw string, offset int) (Cost, error) {
	lead := len(raw) - len(strings.TrimLeft(raw, " \t"))
	t := strings.ToUpper(strings.TrimSpace(raw))
	pos := offset + lead
	if t == "" {
		return Cost{}, &ParseError{Input: input, Pos: pos, Msg: "empty term"}
	}

	channeled := false
	if t[0] == 'K' {
		channeled = true
		t = t[1:]
		pos++
	}

	first, rest := splitDigits(t)
	if first == "" {
		return Cost{}, &ParseError{Input: input, Pos: pos, Msg: "expected digit"}
	}
	n, err := strconv.Atoi(first)
	if err != nil {
		return Cost{}, &ParseError{Input: input, Pos: pos, Msg: err.Error()}
	}
	pos += len(first)

	consumed := 0
	if rest != "" {
		if rest[0] != 'V' {
			return Cost{}, &ParseError{Input: input, Pos: pos, Msg: fmt.Sprintf("unexpected %q", rest[0])}
		}
		second, tail := splitDigits(rest[1:])
		if second == "" {
			return Cost{}, &ParseError{Input: input, Pos: pos + 1, Msg: "expected digit after V"}
		}
		if tail != "" {
			return Cost{}, &ParseError{Input: input, Pos: pos + 1 + len(second), Msg: fmt.Sprintf("unexpected %q", tail[0])}
		}
		consumed, err = strconv.Atoi(second)
		if err != nil {
			return Cost{}, &ParseError{Input: input, Pos: pos + 1, Msg: err.Error()}
		}
	}

	if channeled {
		return Cost{Channeled: n, Consumed: consumed}, nil
	}
	return Cost{Exhausted: n, Consumed: consumed}, nil
}

func splitDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// Add returns the component-wise sum of c and o. The sum is a health cost if
// either operand is.
func (c Cost) Add(o Cost) Cost {
	return Cost{
		Exhausted: c.Exhausted + o.Exhausted,
		Consumed:  c.Consumed + o.Consumed,
		Channeled: c.Channeled + o.Channeled,
		Health:    c.Health || o.Health,
	}
}

// Total returns the number of points the cost removes from the pool.
func (c Cost) Total() int {
	return c.Exhausted + c.Consumed + c.Channeled
}

// IsZero reports whether the cost spends nothing.
func (c Cost) IsZero() bool {
	return c.Total() == 0
}

// String renders c in canonical notation such that Parse(c.String()) yields
// the same components.
func (c Cost) String() string {
	var terms []string
	switch {
	case c.Channeled > 0 && c.Exhausted == 0:
		terms = append(terms, "K"+withConsumed(c.Channeled, c.Consumed))
	case c.Channeled > 0:
		terms = append(terms, withConsumed(c.Exhausted, c.Consumed), "K"+strconv.Itoa(c.Channeled))
	default:
		terms = append(terms, withConsumed(c.Exhausted, c.Consumed))
	}
	return strings.Join(terms, "+")
}

func withConsumed(n, consumed int) string {
	if consumed == 0 {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(n) + "V" + strconv.Itoa(consumed)
}
