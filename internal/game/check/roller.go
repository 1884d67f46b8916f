package check

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

// Roller rolls and evaluates checks.
type Roller struct {
	dice   *dice.Roller
	rules  Rules
	logger *zap.Logger
}

// NewRoller creates a Roller.
//
// Precondition: roller and logger must be non-nil.
func NewRoller(roller *dice.Roller, rules Rules, logger *zap.Logger) *Roller {
	return &Roller{dice: roller, rules: rules, logger: logger}
}

// Request describes one check to roll.
type Request struct {
	// SkillValue is added to the dice total.
	SkillValue  int
	SkillPoints int
	Difficulty  int
	RollType    RollType
}

// Check rolls the dice for req.RollType, adds the skill value and evaluates.
//
// Postcondition: Returns the evaluated Result or an error for an unknown roll type.
func (r *Roller) Check(req Request) (Result, error) {
	exprStr, err := req.RollType.Expression()
	if err != nil {
		return Result{}, err
	}
	expr, err := dice.Parse(exprStr)
	if err != nil {
		return Result{}, fmt.Errorf("check: parsing %q: %w", exprStr, err)
	}
	roll, err := r.dice.Roll(expr.WithModifier(req.SkillValue))
	if err != nil {
		return Result{}, fmt.Errorf("check: rolling: %w", err)
	}
	res := Evaluate(Input{
		Roll:        roll,
		SkillPoints: req.SkillPoints,
		Difficulty:  req.Difficulty,
		RollType:    req.RollType,
		Rules:       r.rules,
	})
	r.logger.Debug("check evaluated",
		zap.String("roll_type", string(req.RollType)),
		zap.Int("difficulty", res.Difficulty),
		zap.Int("total", roll.Total()),
		zap.Bool("succeeded", res.Succeeded),
		zap.Int("degree_of_success", res.DegreeOfSuccess),
		zap.Bool("fumble", res.IsFumble),
		zap.Bool("crit", res.IsCrit),
	)
	return res, nil
}
