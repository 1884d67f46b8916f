// Package hostbridge exposes the combat tracker and the check rules to a
// virtual tabletop host: a gRPC service with structpb.Struct payloads and a
// websocket feed pushing tick-bar contexts and chat messages to clients.
package hostbridge

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/splittermond/internal/game/check"
	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/cost"
	"github.com/cory-johannsen/splittermond/internal/game/status"
	"github.com/cory-johannsen/splittermond/internal/game/tickbar"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "splittermond.v1.TickService"

// TickServer is the server API of the tick service. Every method takes and
// returns a google.protobuf.Struct.
type TickServer interface {
	CreateCombat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndCombat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddCombatant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveCombatant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetDefeated(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetHidden(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddStatusEffect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartCombat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetInitiative(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NextRound(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NextTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RollInitiative(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TickBar(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Combats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ParseCost(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TickServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var methods = []struct {
	name string
	fn   unaryMethod
}{
	{"CreateCombat", TickServer.CreateCombat},
	{"EndCombat", TickServer.EndCombat},
	{"AddCombatant", TickServer.AddCombatant},
	{"RemoveCombatant", TickServer.RemoveCombatant},
	{"SetDefeated", TickServer.SetDefeated},
	{"SetHidden", TickServer.SetHidden},
	{"AddStatusEffect", TickServer.AddStatusEffect},
	{"StartCombat", TickServer.StartCombat},
	{"SetInitiative", TickServer.SetInitiative},
	{"NextRound", TickServer.NextRound},
	{"NextTurn", TickServer.NextTurn},
	{"RollInitiative", TickServer.RollInitiative},
	{"Snapshot", TickServer.Snapshot},
	{"TickBar", TickServer.TickBar},
	{"Combats", TickServer.Combats},
	{"Check", TickServer.Check},
	{"ParseCost", TickServer.ParseCost},
}

// ServiceDesc describes TickServer to grpc.Server.RegisterService.
var ServiceDesc = newServiceDesc()

func newServiceDesc() grpc.ServiceDesc {
	sd := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*TickServer)(nil),
		Metadata:    "splittermond/v1/tick.proto",
	}
	for _, m := range methods {
		sd.Methods = append(sd.Methods, unaryDesc(m.name, m.fn))
	}
	return sd
}

func unaryDesc(name string, fn unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			ts := srv.(TickServer)
			if interceptor == nil {
				return fn(ts, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(ts, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Register installs srv on s.
func Register(s grpc.ServiceRegistrar, srv TickServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the tick service over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req encoded as a Struct.
func (c *Client) Call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Service implements TickServer on top of a combat.Tracker.
type Service struct {
	tracker  *combat.Tracker
	checks   *check.Roller
	defs     *status.Registry
	loc      status.Localizer
	horizon  status.Horizon
	viewport int
	logger   *zap.Logger
}

// ServiceConfig bundles the collaborators of a Service.
type ServiceConfig struct {
	Tracker     *combat.Tracker
	Checks      *check.Roller
	Definitions *status.Registry
	Localizer   status.Localizer
	Horizon     status.Horizon
	// ViewportTicks sizes the tick-bar viewport of TickBar requests.
	ViewportTicks int
	Logger        *zap.Logger
}

// NewService creates a Service.
//
// Precondition: cfg.Tracker, cfg.Checks, cfg.Localizer and cfg.Logger must be non-nil.
func NewService(cfg ServiceConfig) *Service {
	defs := cfg.Definitions
	if defs == nil {
		defs = status.NewRegistry()
	}
	return &Service{
		tracker:  cfg.Tracker,
		checks:   cfg.Checks,
		defs:     defs,
		loc:      cfg.Localizer,
		horizon:  cfg.Horizon,
		viewport: max(cfg.ViewportTicks, 1),
		logger:   cfg.Logger,
	}
}

var empty = &structpb.Struct{Fields: map[string]*structpb.Value{}}

func (s *Service) snapshot(ctx context.Context, id string) (*structpb.Struct, error) {
	c, err := s.tracker.Snapshot(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(viewCombat(c))
}

// CreateCombat creates a combat for scene_id and returns its snapshot.
func (s *Service) CreateCombat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	scene, err := requireString(req, "scene_id")
	if err != nil {
		return nil, err
	}
	c, err := s.tracker.CreateCombat(ctx, scene)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(viewCombat(c))
}

// EndCombat deletes combat_id.
func (s *Service) EndCombat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	if err := s.tracker.EndCombat(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return empty, nil
}

// AddCombatant adds actor to combat_id and returns {"combatant_id"}.
func (s *Service) AddCombatant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	actor, err := parseActor(req)
	if err != nil {
		return nil, err
	}
	cid, err := s.tracker.AddCombatant(ctx, id, actor, boolField(req, "hidden"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"combatant_id": cid})
}

// RemoveCombatant removes combatant_id from combat_id.
func (s *Service) RemoveCombatant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.onCombatant(ctx, req, func(id, cid string) error {
		return s.tracker.RemoveCombatant(ctx, id, cid)
	})
}

// SetDefeated sets the defeated flag of combatant_id.
func (s *Service) SetDefeated(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.onCombatant(ctx, req, func(id, cid string) error {
		return s.tracker.SetDefeated(ctx, id, cid, boolField(req, "defeated"))
	})
}

// SetHidden sets the hidden flag of combatant_id.
func (s *Service) SetHidden(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.onCombatant(ctx, req, func(id, cid string) error {
		return s.tracker.SetHidden(ctx, id, cid, boolField(req, "hidden"))
	})
}

// AddStatusEffect attaches a status effect to combatant_id. A known
// definition_id instantiates the definition at level; otherwise name,
// interval, times and start_tick describe the effect directly.
func (s *Service) AddStatusEffect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	cid, err := requireString(req, "combatant_id")
	if err != nil {
		return nil, err
	}
	level, err := intOr(req, "level", 1)
	if err != nil {
		return nil, err
	}

	effectID := optionalString(req, "effect_id")
	var build combat.EffectFactory
	if defID := optionalString(req, "definition_id"); defID != "" {
		def, ok := s.defs.Get(defID)
		if !ok {
			return nil, invalidArgument("unknown status definition %q", defID)
		}
		build = func(currentTick int, started bool) combat.StatusEffect {
			eff := status.NewEffect(def, level, currentTick, started)
			eff.ID = effectID
			return eff
		}
	} else {
		eff := combat.StatusEffect{
			ID:          effectID,
			Name:        optionalString(req, "name"),
			Description: optionalString(req, "description"),
			Level:       level,
		}
		if eff.Name == "" {
			return nil, invalidArgument("definition_id or name is required")
		}
		if eff.StartTick, err = intOr(req, "start_tick", 0); err != nil {
			return nil, err
		}
		if eff.Interval, err = intOr(req, "interval", 0); err != nil {
			return nil, err
		}
		if eff.Times, err = intOr(req, "times", 0); err != nil {
			return nil, err
		}
		if eff.StartTick < 0 || eff.Interval < 0 || eff.Times < 0 {
			return nil, invalidArgument("start_tick, interval and times must not be negative")
		}
		build = func(int, bool) combat.StatusEffect { return eff }
	}

	if err := s.tracker.AttachStatusEffect(ctx, id, cid, build); err != nil {
		return nil, toStatus(err)
	}
	return s.snapshot(ctx, id)
}

// StartCombat starts combat_id.
func (s *Service) StartCombat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.onCombat(ctx, req, s.tracker.StartCombat)
}

// SetInitiative moves combatant_id to initiative, which is a host number or
// one of "wait", "keep_ready" and "unset". placed_first nudges the combatant
// ahead of others on the same tick.
func (s *Service) SetInitiative(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := field(req, "initiative")
	if !ok {
		return nil, invalidArgument("initiative is required")
	}
	ini, err := parseInitiative(v)
	if err != nil {
		return nil, err
	}
	return s.onCombatant(ctx, req, func(id, cid string) error {
		return s.tracker.SetInitiative(ctx, id, cid, ini, boolField(req, "placed_first"))
	})
}

// NextRound advances combat_id to its next round.
func (s *Service) NextRound(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.onCombat(ctx, req, s.tracker.NextRound)
}

// NextTurn moves the acting combatant of combat_id by delta ticks. Without
// delta the tracker's tick prompt asks the acting user.
func (s *Service) NextTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	delta, ok, err := optionalInt(req, "delta")
	if err != nil {
		return nil, err
	}
	var dp *int
	if ok {
		dp = &delta
	}
	return s.onCombat(ctx, req, func(ctx context.Context, id string) error {
		return s.tracker.NextTurn(ctx, id, dp)
	})
}

// RollInitiative rolls for combatant_ids, or every unset combatant when the
// list is empty.
func (s *Service) RollInitiative(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids := stringList(req, "combatant_ids")
	return s.onCombat(ctx, req, func(ctx context.Context, id string) error {
		return s.tracker.RollInitiative(ctx, id, ids)
	})
}

// Snapshot returns the state of combat_id.
func (s *Service) Snapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, id)
}

// TickBar returns the tick-bar context of combat_id. viewed_tick, when given,
// positions the viewport; it is clamped like a client cursor.
func (s *Service) TickBar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	viewed, hasViewed, err := optionalInt(req, "viewed_tick")
	if err != nil {
		return nil, err
	}
	c, err := s.tracker.Snapshot(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	v := tickbar.NewViewer(s.viewport)
	tctx, sched := tickbar.Compose(c, s.horizon, v)
	if hasViewed {
		for v.ViewedTick() < viewed {
			before := v.ViewedTick()
			if v.StepForward() == before {
				break
			}
		}
		tctx = tickbar.Build(c, sched, v.ViewedTick())
	}
	return toStruct(tctx)
}

// Combats lists the combats of scene_id.
func (s *Service) Combats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	scene, err := requireString(req, "scene_id")
	if err != nil {
		return nil, err
	}
	list, err := s.tracker.Combats(ctx, scene)
	if err != nil {
		return nil, toStatus(err)
	}
	views := make([]combatView, 0, len(list))
	for _, c := range list {
		views = append(views, viewCombat(c))
	}
	return toStruct(map[string]any{"combats": views})
}

type checkView struct {
	Succeeded       bool   `json:"succeeded"`
	IsFumble        bool   `json:"is_fumble"`
	IsCrit          bool   `json:"is_crit"`
	DegreeOfSuccess int    `json:"degree_of_success"`
	Difficulty      int    `json:"difficulty"`
	Total           int    `json:"total"`
	Dice            []int  `json:"dice"`
	Rolled          []int  `json:"rolled"`
	MessageKey      string `json:"message_key"`
	Message         string `json:"message"`
}

// Check rolls a skill check.
func (s *Service) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		r   check.Request
		err error
	)
	if r.SkillValue, err = intOr(req, "skill_value", 0); err != nil {
		return nil, err
	}
	if r.SkillPoints, err = intOr(req, "skill_points", 0); err != nil {
		return nil, err
	}
	if r.Difficulty, err = intOr(req, "difficulty", 15); err != nil {
		return nil, err
	}
	r.RollType = check.RollType(optionalString(req, "roll_type"))
	if _, err := r.RollType.Expression(); err != nil {
		return nil, invalidArgument("%v", err)
	}

	res, err := s.checks.Check(r)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(checkView{
		Succeeded:       res.Succeeded,
		IsFumble:        res.IsFumble,
		IsCrit:          res.IsCrit,
		DegreeOfSuccess: res.DegreeOfSuccess,
		Difficulty:      res.Difficulty,
		Total:           res.Roll.Total(),
		Dice:            res.Roll.Dice,
		Rolled:          res.Roll.Rolled,
		MessageKey:      res.MessageKey,
		Message:         s.loc.Format(res.MessageKey),
	})
}

type costView struct {
	Exhausted int    `json:"exhausted"`
	Consumed  int    `json:"consumed"`
	Channeled int    `json:"channeled"`
	Health    bool   `json:"health"`
	Total     int    `json:"total"`
	Canonical string `json:"canonical"`
}

// ParseCost parses cost, or a health cost when health is set.
func (s *Service) ParseCost(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := optionalString(req, "cost")
	parse := cost.Parse
	if boolField(req, "health") {
		parse = cost.ParseHealth
	}
	c, err := parse(raw)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(costView{
		Exhausted: c.Exhausted,
		Consumed:  c.Consumed,
		Channeled: c.Channeled,
		Health:    c.Health,
		Total:     c.Total(),
		Canonical: c.String(),
	})
}

func (s *Service) onCombat(ctx context.Context, req *structpb.Struct, fn func(context.Context, string) error) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return s.snapshot(ctx, id)
}

func (s *Service) onCombatant(ctx context.Context, req *structpb.Struct, fn func(id, cid string) error) (*structpb.Struct, error) {
	id, err := requireString(req, "combat_id")
	if err != nil {
		return nil, err
	}
	cid, err := requireString(req, "combatant_id")
	if err != nil {
		return nil, err
	}
	if err := fn(id, cid); err != nil {
		return nil, toStatus(err)
	}
	return s.snapshot(ctx, id)
}
