package status_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/status"
	"github.com/cory-johannsen/splittermond/internal/notify"
	"github.com/cory-johannsen/splittermond/internal/scripting"
)

type plainLocalizer struct{}

func (plainLocalizer) Format(key string, args ...any) string {
	return fmt.Sprintf("%s %v", key, args)
}

func combatWith(effects []status.Effect, inits ...float64) *combat.Combat {
	c := &combat.Combat{ID: "c1", SceneID: "s1"}
	for i, ini := range inits {
		id := fmt.Sprintf("cb%d", i)
		actor := combat.Actor{ID: "a" + id, Name: "Actor " + id, OwnerIDs: []string{"u1"}}
		if i == 0 {
			actor.StatusEffects = effects
		}
		c.AddCombatant(id, actor, false, nil)
		c.SetInitiative(id, combat.Scheduled(ini), false, nil)
	}
	return c
}

func TestTokenFor_Participation(t *testing.T) {
	_, ok := status.TokenFor("x", status.Effect{StartTick: 0, Interval: 3})
	assert.False(t, ok, "effect created outside combat")
	_, ok = status.TokenFor("x", status.Effect{StartTick: 4, Interval: 0})
	assert.False(t, ok)
	tok, ok := status.TokenFor("x", status.Effect{StartTick: 4, Interval: 2})
	require.True(t, ok)
	assert.Equal(t, status.DefaultTimes, tok.Times)
}

func TestActivations(t *testing.T) {
	tok, ok := status.TokenFor("x", status.Effect{StartTick: 10, Interval: 5, Times: 2})
	require.True(t, ok)
	assert.Equal(t, []int{10, 15}, tok.Activations())
	assert.Equal(t, 20, tok.End())
}

func TestActivations_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		start := rapid.IntRange(1, 100).Draw(rt, "start")
		interval := rapid.IntRange(1, 20).Draw(rt, "interval")
		times := rapid.IntRange(1, 90).Draw(rt, "times")
		tok, _ := status.TokenFor("x", status.Effect{StartTick: start, Interval: interval, Times: times})
		acts := tok.Activations()
		require.Len(rt, acts, times)
		for k, at := range acts {
			assert.Equal(rt, start+k*interval, at)
		}
	})
}

func TestBuild_Horizon(t *testing.T) {
	c := combatWith(nil, 10, 25)
	s := status.Build(c, status.DefaultHorizon())
	assert.Equal(t, 10, s.MinTick)
	assert.Equal(t, 50, s.MaxTick)

	c = combatWith(nil, 10, 40)
	assert.Equal(t, 65, status.Build(c, status.DefaultHorizon()).MaxTick)

	c = combatWith([]status.Effect{{StartTick: 12, Interval: 10, Times: 5}}, 10)
	assert.Equal(t, 87, status.Build(c, status.DefaultHorizon()).MaxTick)
}

func TestBuild_ExcludesHiddenAndDefeatedFromRange(t *testing.T) {
	c := combatWith(nil, 3, 8, 70)
	c.Find("cb0").Hidden = true
	c.Find("cb2").Defeated = true
	s := status.Build(c, status.DefaultHorizon())
	assert.Equal(t, 8, s.MinTick)
	assert.Equal(t, 50, s.MaxTick)
}

func TestBuild_NoCombatants(t *testing.T) {
	s := status.Build(&combat.Combat{ID: "empty"}, status.DefaultHorizon())
	assert.Equal(t, 0, s.MinTick)
	assert.Equal(t, 50, s.MaxTick)
}

func TestBuild_Markers(t *testing.T) {
	c := combatWith([]status.Effect{{ID: "e", Name: "Brennend", StartTick: 10, Interval: 5, Times: 2}}, 8)
	s := status.Build(c, status.DefaultHorizon())
	require.Len(t, s.MarkersAt(10), 1)
	require.Len(t, s.MarkersAt(15), 1)
	assert.Empty(t, s.MarkersAt(20))
	assert.Equal(t, "Brennend", s.MarkersAt(10)[0].Name)
}

func TestBuild_UnsetTimesStaysBounded(t *testing.T) {
	c := combatWith([]status.Effect{{StartTick: 1, Interval: 1}}, 1)
	s := status.Build(c, status.DefaultHorizon())
	assert.Equal(t, 1+90+25, s.MaxTick)
	total := 0
	for _, m := range s.Markers {
		total += len(m)
	}
	assert.Equal(t, 90, total)
}

func owner(id string) func(*combat.Combatant) bool {
	return func(c *combat.Combatant) bool { return c.OwnedBy(id) }
}

func TestTriggered_Rule(t *testing.T) {
	c := combatWith([]status.Effect{{StartTick: 10, Interval: 5, Times: 2}}, 15)
	s := status.Build(c, status.DefaultHorizon())
	require.Equal(t, 15, s.CurrentTick)

	tr := s.Triggered(5, owner("u1"))
	require.Len(t, tr, 2)
	assert.Equal(t, 10, tr[0].Tick)
	assert.Equal(t, 15, tr[1].Tick)

	assert.Empty(t, s.Triggered(15, owner("u1")), "time did not advance")
	assert.Len(t, s.Triggered(10, owner("u1")), 1, "tick 10 already handled")
	assert.Empty(t, s.Triggered(5, owner("someone else")))
}

func TestWatcher_FirstObservationOnlyRecords(t *testing.T) {
	rec := &notify.Recorder{}
	w := status.NewWatcher("u1", plainLocalizer{}, rec, zap.NewNop())
	c := combatWith([]status.Effect{{StartTick: 10, Interval: 1, Times: 1}}, 15)
	assert.Equal(t, 0, w.Observe(context.Background(), status.Build(c, status.DefaultHorizon())))
	last, ok := w.LastObserved("c1")
	require.True(t, ok)
	assert.Equal(t, 15, last)
}

func TestWatcher_AdvancingWindowNotifiesOnce(t *testing.T) {
	rec := &notify.Recorder{}
	w := status.NewWatcher("u1", plainLocalizer{}, rec, zap.NewNop())
	c := combatWith([]status.Effect{{ID: "e1", Name: "Blutend", Level: 1, StartTick: 10, Interval: 1, Times: 1}}, 15)
	c.Start(nil)
	s := status.Build(c, status.DefaultHorizon())

	w.SetLastObserved("c1", 5)
	assert.Equal(t, 1, w.Observe(context.Background(), s))
	require.Len(t, rec.Messages, 1)
	msg := rec.Messages[0]
	assert.Equal(t, "Actor cb0", msg.Speaker)
	assert.Equal(t, "c1", msg.CombatID)
	assert.Contains(t, msg.Content, status.MessageKeyTriggered)

	assert.Equal(t, 0, w.Observe(context.Background(), s), "same tick again")
	assert.Len(t, rec.Messages, 1)
}

func TestWatcher_GameMasterOwnsUnownedCombatants(t *testing.T) {
	c := combatWith([]status.Effect{{StartTick: 10, Interval: 1, Times: 1}}, 15)
	c.Find("cb0").Actor.OwnerIDs = nil
	s := status.Build(c, status.DefaultHorizon())

	player := status.NewWatcher("u1", plainLocalizer{}, &notify.Recorder{}, zap.NewNop())
	player.SetLastObserved("c1", 5)
	assert.Equal(t, 0, player.Observe(context.Background(), s))

	gm := status.NewWatcher("gm", plainLocalizer{}, &notify.Recorder{}, zap.NewNop(), status.AsGameMaster())
	gm.SetLastObserved("c1", 5)
	assert.Equal(t, 1, gm.Observe(context.Background(), s))
}

func TestWatcher_SharedClaimsNotifyOnce(t *testing.T) {
	c := combatWith([]status.Effect{{ID: "e1", StartTick: 10, Interval: 1, Times: 1}}, 15)
	c.Find("cb0").Actor.OwnerIDs = nil
	s := status.Build(c, status.DefaultHorizon())

	claims := status.NewClaims()
	rec := &notify.Recorder{}
	first := status.NewWatcher("gm1", plainLocalizer{}, rec, zap.NewNop(), status.AsGameMaster(), status.WithClaims(claims))
	second := status.NewWatcher("gm2", plainLocalizer{}, rec, zap.NewNop(), status.AsGameMaster(), status.WithClaims(claims))
	first.SetLastObserved("c1", 5)
	second.SetLastObserved("c1", 5)

	assert.Equal(t, 1, first.Observe(context.Background(), s))
	assert.Equal(t, 0, second.Observe(context.Background(), s))
	assert.Len(t, rec.Messages, 1)

	claims.Release("c1")
	second.SetLastObserved("c1", 5)
	assert.Equal(t, 1, second.Observe(context.Background(), s))
}

type hooksFunc func(ctx context.Context, hook string, ev scripting.TriggerEvent) (string, error)

func (f hooksFunc) OnTrigger(ctx context.Context, hook string, ev scripting.TriggerEvent) (string, error) {
	return f(ctx, hook, ev)
}

func TestWatcher_HooksDecorateAndFailuresAreSkipped(t *testing.T) {
	reg := status.NewRegistry()
	reg.Register(&status.Definition{ID: "burning", Name: "Brennend", Sound: "sounds/fire.ogg", LuaOnTrigger: "burning"})
	reg.Register(&status.Definition{ID: "broken", Name: "Kaputt", LuaOnTrigger: "broken"})
	hooks := hooksFunc(func(_ context.Context, hook string, ev scripting.TriggerEvent) (string, error) {
		if hook == "broken" {
			return "", errors.New("lua exploded")
		}
		return fmt.Sprintf("%s takes 3 damage", ev.Combatant), nil
	})

	core, logs := observer.New(zap.WarnLevel)
	rec := &notify.Recorder{}
	w := status.NewWatcher("u1", plainLocalizer{}, rec, zap.New(core), status.WithDefinitions(reg), status.WithHooks(hooks))

	c := combatWith([]status.Effect{
		{ID: "e1", DefinitionID: "broken", Name: "Kaputt", StartTick: 9, Interval: 1, Times: 1},
		{ID: "e2", DefinitionID: "burning", Name: "Brennend", StartTick: 10, Interval: 1, Times: 1},
	}, 12)
	w.SetLastObserved("c1", 5)
	assert.Equal(t, 1, w.Observe(context.Background(), status.Build(c, status.DefaultHorizon())))
	require.Len(t, rec.Messages, 1)
	assert.Contains(t, rec.Messages[0].Content, "Actor cb0 takes 3 damage")
	assert.Equal(t, "sounds/fire.ogg", rec.Messages[0].Sound)
	assert.Equal(t, 1, logs.FilterMessage("status trigger skipped").Len())
}

func TestWatcher_Forget(t *testing.T) {
	w := status.NewWatcher("u1", plainLocalizer{}, &notify.Recorder{}, zap.NewNop())
	w.SetLastObserved("c1", 3)
	w.Forget("c1")
	_, ok := w.LastObserved("c1")
	assert.False(t, ok)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "burning.yaml"), []byte(`
id: burning
name: Brennend
description: "Verliert jede Runde Lebenspunkte."
interval: 3
times: 5
sound: sounds/fire.ogg
lua_on_trigger: burning
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	reg, err := status.LoadDirectory(dir)
	require.NoError(t, err)
	def, ok := reg.Get("burning")
	require.True(t, ok)
	assert.Equal(t, 3, def.Interval)
	assert.Equal(t, "burning", def.LuaOnTrigger)
	assert.Len(t, reg.All(), 1)
}

func TestLoadDirectory_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "id: x\nbogus: 1\n",
		"missing id":    "name: x\n",
		"negative":      "id: x\ninterval: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "x.yaml"), []byte(body), 0644))
			_, err := status.LoadDirectory(dir)
			assert.Error(t, err)
		})
	}
}

func TestNewEffect(t *testing.T) {
	def := &status.Definition{ID: "burning", Name: "Brennend", Interval: 3, Times: 5}
	e := status.NewEffect(def, 2, 14, true)
	assert.Equal(t, 17, e.StartTick)
	assert.Equal(t, 2, e.Level)
	assert.Equal(t, "burning", e.DefinitionID)

	e = status.NewEffect(def, 1, 14, false)
	assert.Equal(t, 0, e.StartTick)
	_, ok := status.TokenFor("x", e)
	assert.False(t, ok)
}
