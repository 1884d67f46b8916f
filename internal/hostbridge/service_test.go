package hostbridge_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/splittermond/internal/game/check"
	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/dice"
	gamestatus "github.com/cory-johannsen/splittermond/internal/game/status"
	"github.com/cory-johannsen/splittermond/internal/hostbridge"
	"github.com/cory-johannsen/splittermond/internal/i18n"
)

type fixture struct {
	client  *hostbridge.Client
	conn    *grpc.ClientConn
	tracker *combat.Tracker
}

func newFixture(t *testing.T, checkDice ...int) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	bundle, err := i18n.LoadEmbedded()
	require.NoError(t, err)

	iniRoller := combat.NewDiceInitiativeRoller(dice.NewLoggedRoller(dice.NewSequenceSource(2), zap.NewNop()))
	tracker := combat.NewTracker(combat.NewMemoryRepository(), iniRoller, logger)

	if len(checkDice) == 0 {
		checkDice = []int{4, 5}
	}
	checks := check.NewRoller(dice.NewLoggedRoller(dice.NewSequenceSource(checkDice...), zap.NewNop()), check.DefaultRules(), logger)

	defs := gamestatus.NewRegistry()
	defs.Register(&gamestatus.Definition{ID: "burning", Name: "Brennend", Interval: 3, Times: 4})

	svc := hostbridge.NewService(hostbridge.ServiceConfig{
		Tracker:       tracker,
		Checks:        checks,
		Definitions:   defs,
		Localizer:     bundle.Localizer("de-DE"),
		Horizon:       gamestatus.DefaultHorizon(),
		ViewportTicks: 20,
		Logger:        logger,
	})

	lis := bufconn.Listen(1 << 20)
	srv := hostbridge.NewGRPCServer(svc, logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{client: hostbridge.NewClient(conn), conn: conn, tracker: tracker}
}

func (f *fixture) call(t *testing.T, method string, req map[string]any) *structpb.Struct {
	t.Helper()
	out, err := f.client.Call(context.Background(), method, req)
	require.NoError(t, err, method)
	return out
}

func (f *fixture) newCombat(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	out := f.call(t, "CreateCombat", map[string]any{"scene_id": "scene-1"})
	id := out.GetFields()["id"].GetStringValue()
	require.NotEmpty(t, id)
	var cids []string
	for _, n := range names {
		res := f.call(t, "AddCombatant", map[string]any{
			"combat_id": id,
			"actor":     map[string]any{"id": n, "name": n, "intuition": 2, "initiative_value": 10},
		})
		cids = append(cids, res.GetFields()["combatant_id"].GetStringValue())
	}
	return id, cids
}

func codeOf(err error) codes.Code {
	s, _ := status.FromError(err)
	return s.Code()
}

func combatants(s *structpb.Struct) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range s.GetFields()["combatants"].GetListValue().GetValues() {
		out = append(out, v.GetStructValue())
	}
	return out
}

func TestService_TurnFlow(t *testing.T) {
	f := newFixture(t)
	id, cids := f.newCombat(t, "Arwen", "Goblin")

	f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[0], "initiative": 5})
	f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[1], "initiative": 8})
	snap := f.call(t, "StartCombat", map[string]any{"combat_id": id})

	assert.True(t, snap.GetFields()["started"].GetBoolValue())
	assert.Equal(t, float64(5), snap.GetFields()["current_tick"].GetNumberValue())
	assert.Equal(t, cids[0], snap.GetFields()["acting_id"].GetStringValue())

	snap = f.call(t, "NextTurn", map[string]any{"combat_id": id, "delta": 6})
	assert.Equal(t, float64(8), snap.GetFields()["current_tick"].GetNumberValue())
	assert.Equal(t, cids[1], snap.GetFields()["acting_id"].GetStringValue())

	list := combatants(snap)
	require.Len(t, list, 2)
	assert.Equal(t, 11.0, list[1].GetFields()["initiative"].GetNumberValue())
}

func TestService_SetInitiativeStates(t *testing.T) {
	f := newFixture(t)
	id, cids := f.newCombat(t, "A", "B", "C")

	f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[0], "initiative": "wait"})
	f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[1], "initiative": 20000})
	snap := f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[2], "initiative": 3})

	states := map[string]string{}
	for _, c := range combatants(snap) {
		states[c.GetFields()["id"].GetStringValue()] = c.GetFields()["initiative_state"].GetStringValue()
	}
	assert.Equal(t, "wait", states[cids[0]])
	assert.Equal(t, "keep_ready", states[cids[1]])
	assert.Equal(t, "scheduled", states[cids[2]])

	_, err := f.client.Call(context.Background(), "SetInitiative", map[string]any{
		"combat_id": id, "combatant_id": cids[0], "initiative": "sleeping",
	})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))
}

func TestService_RollInitiative(t *testing.T) {
	f := newFixture(t)
	id, _ := f.newCombat(t, "A")

	snap := f.call(t, "RollInitiative", map[string]any{"combat_id": id})
	list := combatants(snap)
	require.Len(t, list, 1)
	// INI 10 minus a rolled 3.
	assert.Equal(t, 7.0, list[0].GetFields()["initiative"].GetNumberValue())
}

func TestService_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Call(ctx, "Snapshot", map[string]any{"combat_id": "missing"})
	assert.Equal(t, codes.NotFound, codeOf(err))

	_, err = f.client.Call(ctx, "Snapshot", map[string]any{})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.client.Call(ctx, "ParseCost", map[string]any{"cost": "4X"})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.client.Call(ctx, "Check", map[string]any{"roll_type": "lucky"})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.client.Call(ctx, "NoSuchMethod", map[string]any{})
	assert.Equal(t, codes.Unimplemented, codeOf(err))
}

func TestService_NextTurnWithoutDeltaIsDismissed(t *testing.T) {
	f := newFixture(t)
	id, cids := f.newCombat(t, "A")
	f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[0], "initiative": 4})
	f.call(t, "StartCombat", map[string]any{"combat_id": id})

	snap := f.call(t, "NextTurn", map[string]any{"combat_id": id})
	assert.Equal(t, float64(4), snap.GetFields()["current_tick"].GetNumberValue())
}

func TestService_StatusEffectAndTickBar(t *testing.T) {
	f := newFixture(t)
	id, cids := f.newCombat(t, "A")
	f.call(t, "SetInitiative", map[string]any{"combat_id": id, "combatant_id": cids[0], "initiative": 2})
	f.call(t, "StartCombat", map[string]any{"combat_id": id})

	snap := f.call(t, "AddStatusEffect", map[string]any{
		"combat_id": id, "combatant_id": cids[0], "definition_id": "burning", "level": 2,
	})
	effects := combatants(snap)[0].GetFields()["status_effects"].GetListValue().GetValues()
	require.Len(t, effects, 1)
	eff := effects[0].GetStructValue().GetFields()
	assert.Equal(t, "Brennend", eff["name"].GetStringValue())
	assert.Equal(t, 5.0, eff["start_tick"].GetNumberValue())

	bar := f.call(t, "TickBar", map[string]any{"combat_id": id})
	fields := bar.GetFields()
	assert.Equal(t, 2.0, fields["current_tick"].GetNumberValue())
	assert.Equal(t, 2.0, fields["viewed_tick"].GetNumberValue())

	var markerTicks []float64
	for _, b := range fields["ticks"].GetListValue().GetValues() {
		bf := b.GetStructValue().GetFields()
		if len(bf["markers"].GetListValue().GetValues()) > 0 {
			markerTicks = append(markerTicks, bf["tick"].GetNumberValue())
		}
	}
	assert.Equal(t, []float64{5, 8, 11, 14}, markerTicks)

	_, err := f.client.Call(context.Background(), "AddStatusEffect", map[string]any{
		"combat_id": id, "combatant_id": cids[0], "definition_id": "frozen",
	})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))
}

func TestService_Check(t *testing.T) {
	f := newFixture(t, 4, 5)
	out := f.call(t, "Check", map[string]any{
		"skill_value": 10, "skill_points": 3, "difficulty": 15, "roll_type": "standard",
	})
	fields := out.GetFields()
	assert.True(t, fields["succeeded"].GetBoolValue())
	assert.Equal(t, 21.0, fields["total"].GetNumberValue())
	assert.Equal(t, 2.0, fields["degree_of_success"].GetNumberValue())
	assert.Equal(t, "splittermond.successMessage.2", fields["message_key"].GetStringValue())
	assert.Equal(t, "Gut gelungen mit zwei Erfolgsgraden.", fields["message"].GetStringValue())
}

func TestService_ParseCost(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "ParseCost", map[string]any{"cost": "K4V2"})
	fields := out.GetFields()
	assert.Equal(t, 4.0, fields["channeled"].GetNumberValue())
	assert.Equal(t, 2.0, fields["consumed"].GetNumberValue())
	assert.False(t, fields["health"].GetBoolValue())
}

func TestService_CombatsAndEnd(t *testing.T) {
	f := newFixture(t)
	id, _ := f.newCombat(t)
	f.newCombat(t)

	out := f.call(t, "Combats", map[string]any{"scene_id": "scene-1"})
	assert.Len(t, out.GetFields()["combats"].GetListValue().GetValues(), 2)

	f.call(t, "EndCombat", map[string]any{"combat_id": id})
	out = f.call(t, "Combats", map[string]any{"scene_id": "scene-1"})
	assert.Len(t, out.GetFields()["combats"].GetListValue().GetValues(), 1)
}

func TestService_Health(t *testing.T) {
	f := newFixture(t)
	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: hostbridge.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
