package combat

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

// InitiativeRoller produces a fresh initiative, relative to tick 0, for an actor.
type InitiativeRoller interface {
	RollInitiative(ctx context.Context, actor Actor) (int, error)
}

// DiceInitiativeRoller rolls INI - 1d6 through a logged dice roller.
type DiceInitiativeRoller struct {
	dice *dice.Roller
}

// NewDiceInitiativeRoller creates a DiceInitiativeRoller.
//
// Precondition: roller must be non-nil.
func NewDiceInitiativeRoller(roller *dice.Roller) *DiceInitiativeRoller {
	return &DiceInitiativeRoller{dice: roller}
}

// RollInitiative implements InitiativeRoller.
//
// Postcondition: result is in [actor.InitiativeValue-6, actor.InitiativeValue-1].
func (r *DiceInitiativeRoller) RollInitiative(ctx context.Context, actor Actor) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := r.dice.RollExpr(dice.ExprInitiative)
	if err != nil {
		return 0, fmt.Errorf("rolling initiative for %s: %w", actor.ID, err)
	}
	return actor.InitiativeValue - res.Total(), nil
}
