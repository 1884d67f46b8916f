package check_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/splittermond/internal/game/check"
	"github.com/cory-johannsen/splittermond/internal/game/dice"
)

func roll(mod int, ds ...int) dice.RollResult {
	return dice.RollResult{Expression: "2d10", Rolled: ds, Dice: ds, Modifier: mod}
}

func TestEvaluate_DegreeOfSuccess(t *testing.T) {
	tests := []struct {
		name       string
		roll       dice.RollResult
		difficulty int
		wantDos    int
		wantOK     bool
		wantKey    string
	}{
		{"exact hit", roll(10, 5, 5), 20, 0, true, "splittermond.successMessage.0"},
		{"three over", roll(13, 5, 5), 20, 1, true, "splittermond.successMessage.1"},
		{"five over", roll(15, 5, 5), 20, 1, true, "splittermond.successMessage.1"},
		{"one under", roll(9, 5, 5), 20, 0, false, "splittermond.failMessage.0"},
		{"seven under", roll(3, 5, 5), 20, -2, false, "splittermond.failMessage.2"},
		{"message capped", roll(40, 5, 5), 20, 10, true, "splittermond.successMessage.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := check.Evaluate(check.Input{Roll: tc.roll, SkillPoints: 3, Difficulty: tc.difficulty, RollType: check.RollStandard})
			assert.Equal(t, tc.wantDos, res.DegreeOfSuccess)
			assert.Equal(t, tc.wantOK, res.Succeeded)
			assert.Equal(t, tc.wantKey, res.MessageKey)
			assert.Equal(t, tc.difficulty, res.Difficulty)
			assert.False(t, res.IsFumble)
			assert.False(t, res.IsCrit)
		})
	}
}

func TestEvaluate_Fumble(t *testing.T) {
	res := check.Evaluate(check.Input{Roll: roll(30, 1, 2), SkillPoints: 3, Difficulty: 15, RollType: check.RollStandard})
	assert.True(t, res.IsFumble)
	assert.False(t, res.Succeeded)
	// difference 18 → dos 6, fumble → min(6-3, -1) = -1
	assert.Equal(t, -1, res.DegreeOfSuccess)

	res = check.Evaluate(check.Input{Roll: roll(0, 1, 1), SkillPoints: 3, Difficulty: 15, RollType: check.RollStandard})
	assert.True(t, res.IsFumble)
	// difference -13 → dos -4, fumble → -7
	assert.Equal(t, -7, res.DegreeOfSuccess)
}

func TestEvaluate_SafetyRollNeverFumbles(t *testing.T) {
	r := dice.RollResult{Expression: dice.ExprSafety, Rolled: []int{1, 1}, Dice: []int{1}, Modifier: 20}
	res := check.Evaluate(check.Input{Roll: r, SkillPoints: 3, Difficulty: 15, RollType: check.RollSafety})
	assert.False(t, res.IsFumble)
	assert.False(t, res.IsCrit)
	assert.True(t, res.Succeeded)
}

func TestEvaluate_RiskRoll_FumbleUsesLowestDice(t *testing.T) {
	r := dice.RollResult{Expression: dice.ExprRisk, Rolled: []int{1, 2, 8, 9}, Dice: []int{9, 8}, Modifier: 10}
	res := check.Evaluate(check.Input{Roll: r, SkillPoints: 3, Difficulty: 20, RollType: check.RollRisk})
	assert.True(t, res.IsFumble)
	assert.False(t, res.Succeeded)
}

func TestEvaluate_Crit(t *testing.T) {
	res := check.Evaluate(check.Input{Roll: roll(5, 10, 9), SkillPoints: 3, Difficulty: 24, RollType: check.RollStandard})
	assert.True(t, res.IsCrit)
	assert.True(t, res.Succeeded)
	// difference 0 → dos 0, crit → 3
	assert.Equal(t, 3, res.DegreeOfSuccess)
}

func TestEvaluate_FailedCritGetsNoBonus(t *testing.T) {
	res := check.Evaluate(check.Input{Roll: roll(0, 10, 10), SkillPoints: 3, Difficulty: 24, RollType: check.RollStandard})
	assert.True(t, res.IsCrit)
	assert.False(t, res.Succeeded)
	// difference -4 → dos -1, no bonus on a failure
	assert.Equal(t, -1, res.DegreeOfSuccess)
	assert.Equal(t, "splittermond.failMessage.1", res.MessageKey)
}

func TestEvaluate_RiskRoll_FumbleOverridesCrit(t *testing.T) {
	r := dice.RollResult{Expression: dice.ExprRisk, Rolled: []int{1, 1, 10, 10}, Dice: []int{10, 10}, Modifier: 5}
	res := check.Evaluate(check.Input{Roll: r, SkillPoints: 5, Difficulty: 15, RollType: check.RollRisk})
	assert.True(t, res.IsFumble)
	assert.True(t, res.IsCrit)
	assert.False(t, res.Succeeded)
	// difference 10 → dos 3, fumble → min(3-3, -1) = -1
	assert.Equal(t, -1, res.DegreeOfSuccess)
	assert.Equal(t, "splittermond.failMessage.1", res.MessageKey)
}

func TestEvaluate_Unskilled_Clamped(t *testing.T) {
	res := check.Evaluate(check.Input{Roll: roll(30, 10, 10), SkillPoints: 0, Difficulty: 15, RollType: check.RollStandard})
	assert.True(t, res.IsCrit)
	assert.Equal(t, 0, res.DegreeOfSuccess)
}

func TestEvaluate_Property_UnskilledNeverPositive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d1 := rapid.IntRange(1, 10).Draw(rt, "d1")
		d2 := rapid.IntRange(1, 10).Draw(rt, "d2")
		mod := rapid.IntRange(-10, 60).Draw(rt, "mod")
		sp := rapid.IntRange(-3, 0).Draw(rt, "skill_points")
		diff := rapid.IntRange(0, 60).Draw(rt, "difficulty")
		res := check.Evaluate(check.Input{Roll: roll(mod, d1, d2), SkillPoints: sp, Difficulty: diff, RollType: check.RollStandard})
		assert.LessOrEqual(rt, res.DegreeOfSuccess, 0)
	})
}

func TestEvaluate_Property_MonotoneInTotal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d1 := rapid.IntRange(1, 10).Draw(rt, "d1")
		d2 := rapid.IntRange(1, 10).Draw(rt, "d2")
		mod := rapid.IntRange(-10, 60).Draw(rt, "mod")
		sp := rapid.IntRange(1, 20).Draw(rt, "skill_points")
		diff := rapid.IntRange(0, 60).Draw(rt, "difficulty")
		in := check.Input{Roll: roll(mod, d1, d2), SkillPoints: sp, Difficulty: diff, RollType: check.RollStandard}
		before := check.Evaluate(in)
		in.Roll = roll(mod+3, d1, d2)
		after := check.Evaluate(in)
		assert.GreaterOrEqual(rt, after.DegreeOfSuccess, before.DegreeOfSuccess)
	})
}

func TestEvaluate_Property_FumbleNeverSucceeds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ds := rapid.SliceOfN(rapid.IntRange(1, 10), 4, 4).Draw(rt, "dice")
		mod := rapid.IntRange(-10, 60).Draw(rt, "mod")
		r, err := dice.Roll(dice.MustParse(dice.ExprRisk), dice.NewSequenceSource(ds[0]-1, ds[1]-1, ds[2]-1, ds[3]-1))
		require.NoError(rt, err)
		r.Modifier = mod
		res := check.Evaluate(check.Input{Roll: r, SkillPoints: 5, Difficulty: 20, RollType: check.RollRisk})
		if res.IsFumble {
			assert.False(rt, res.Succeeded)
			assert.LessOrEqual(rt, res.DegreeOfSuccess, -1)
		}
		if !res.Succeeded {
			assert.LessOrEqual(rt, res.DegreeOfSuccess, 0)
		}
	})
}

func TestRollType_Expression(t *testing.T) {
	e, err := check.RollRisk.Expression()
	require.NoError(t, err)
	assert.Equal(t, dice.ExprRisk, e)
	_, err = check.RollType("bogus").Expression()
	assert.Error(t, err)
}

func TestRoller_Check(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.NewSequenceSource(4, 5), zap.NewNop())
	cr := check.NewRoller(roller, check.DefaultRules(), zap.NewNop())

	res, err := cr.Check(check.Request{SkillValue: 11, SkillPoints: 4, Difficulty: 20, RollType: check.RollStandard})
	require.NoError(t, err)
	// 5 + 6 + 11 = 22 against 20
	assert.Equal(t, 22, res.Roll.Total())
	assert.True(t, res.Succeeded)
	assert.Equal(t, 0, res.DegreeOfSuccess)
	assert.Equal(t, "2d10+11", res.Roll.Expression)

	_, err = cr.Check(check.Request{RollType: "bogus"})
	assert.Error(t, err)
}
