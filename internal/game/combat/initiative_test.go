package combat_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
)

func TestFromRaw_Sentinels(t *testing.T) {
	assert.Equal(t, combat.KindWaiting, combat.FromRaw(10000).Kind())
	assert.Equal(t, combat.KindKeepingReady, combat.FromRaw(20000).Kind())
	assert.Equal(t, combat.KindUnset, combat.FromRaw(math.NaN()).Kind())
	assert.Equal(t, combat.KindScheduled, combat.FromRaw(12.5).Kind())
}

func TestRaw_RoundTrip(t *testing.T) {
	for _, ini := range []combat.Initiative{combat.Waiting(), combat.KeepingReady(), combat.Scheduled(7.02)} {
		assert.Equal(t, ini, combat.FromRaw(ini.Raw()))
	}
	assert.True(t, math.IsNaN(combat.Unset().Raw()))
}

func TestScheduled_NonFiniteIsUnset(t *testing.T) {
	assert.Equal(t, combat.Unset(), combat.Scheduled(math.Inf(1)))
	assert.Equal(t, combat.Unset(), combat.Scheduled(math.NaN()))
}

func TestTick(t *testing.T) {
	tick, ok := combat.Scheduled(10.49).Tick()
	assert.True(t, ok)
	assert.Equal(t, 10, tick)
	tick, _ = combat.Scheduled(10.5).Tick()
	assert.Equal(t, 11, tick)
	_, ok = combat.Waiting().Tick()
	assert.False(t, ok)
}

func TestRoundTick_Property_WithinHalf(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := rapid.Float64Range(-1000, 1000).Draw(rt, "v")
		got := combat.RoundTick(v)
		assert.LessOrEqual(rt, math.Abs(float64(got)-v), 0.5)
	})
}

func TestInitiative_String(t *testing.T) {
	assert.Equal(t, "3.01", combat.Scheduled(3.01).String())
	assert.Equal(t, "waiting", combat.Waiting().String())
	assert.Equal(t, "keep_ready", combat.KeepingReady().String())
	assert.Equal(t, "unset", combat.Unset().String())
}
