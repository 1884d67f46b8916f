package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/cost"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var perr *cost.ParseError
	switch {
	case errors.Is(err, combat.ErrCombatNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &perr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, combat.ErrTurnInFlight):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, combat.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func field(req *structpb.Struct, key string) (*structpb.Value, bool) {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func requireString(req *structpb.Struct, key string) (string, error) {
	v, ok := field(req, key)
	if !ok || v.GetStringValue() == "" {
		return "", invalidArgument("%s is required", key)
	}
	return v.GetStringValue(), nil
}

func optionalString(req *structpb.Struct, key string) string {
	v, ok := field(req, key)
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// optionalInt returns the number at key rounded to an int. ok is false when
// the key is absent.
func optionalInt(req *structpb.Struct, key string) (n int, ok bool, err error) {
	v, present := field(req, key)
	if !present {
		return 0, false, nil
	}
	num, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || math.IsNaN(num.NumberValue) || math.IsInf(num.NumberValue, 0) {
		return 0, false, invalidArgument("%s must be a number", key)
	}
	return int(math.Round(num.NumberValue)), true, nil
}

func intOr(req *structpb.Struct, key string, def int) (int, error) {
	n, ok, err := optionalInt(req, key)
	if err != nil || !ok {
		return def, err
	}
	return n, nil
}

func boolField(req *structpb.Struct, key string) bool {
	v, ok := field(req, key)
	return ok && v.GetBoolValue()
}

func stringList(req *structpb.Struct, key string) []string {
	v, ok := field(req, key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range v.GetListValue().GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseInitiative accepts either a host initiative number (with the host's
// wait and keep-ready sentinels) or one of the state names.
func parseInitiative(v *structpb.Value) (combat.Initiative, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return combat.FromRaw(k.NumberValue), nil
	case *structpb.Value_StringValue:
		switch k.StringValue {
		case "wait", "waiting":
			return combat.Waiting(), nil
		case "keep_ready", "keeping_ready":
			return combat.KeepingReady(), nil
		case "unset", "":
			return combat.Unset(), nil
		}
		return combat.Initiative{}, invalidArgument("unknown initiative state %q", k.StringValue)
	default:
		return combat.Initiative{}, invalidArgument("initiative must be a number or state name")
	}
}

func parseActor(req *structpb.Struct) (combat.Actor, error) {
	v, ok := field(req, "actor")
	if !ok || v.GetStructValue() == nil {
		return combat.Actor{}, invalidArgument("actor is required")
	}
	a := v.GetStructValue()
	actor := combat.Actor{
		ID:          optionalString(a, "id"),
		Name:        optionalString(a, "name"),
		PlayerOwned: boolField(a, "player_owned"),
		OwnerIDs:    stringList(a, "owner_ids"),
	}
	var err error
	if actor.Intuition, err = intOr(a, "intuition", 0); err != nil {
		return combat.Actor{}, err
	}
	if actor.InitiativeValue, err = intOr(a, "initiative_value", 0); err != nil {
		return combat.Actor{}, err
	}
	if actor.Name == "" {
		return combat.Actor{}, invalidArgument("actor.name is required")
	}
	return actor, nil
}

// toStruct encodes v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("converting response: %w", err)
	}
	return out, nil
}

type effectView struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Level        int    `json:"level"`
	StartTick    int    `json:"start_tick"`
	Interval     int    `json:"interval"`
	Times        int    `json:"times"`
}

type combatantView struct {
	ID              string       `json:"id"`
	ActorID         string       `json:"actor_id"`
	Name            string       `json:"name"`
	Intuition       int          `json:"intuition"`
	InitiativeValue int          `json:"initiative_value"`
	PlayerOwned     bool         `json:"player_owned"`
	OwnerIDs        []string     `json:"owner_ids"`
	State           string       `json:"initiative_state"`
	Initiative      *float64     `json:"initiative,omitempty"`
	Defeated        bool         `json:"defeated"`
	Hidden          bool         `json:"hidden"`
	StatusEffects   []effectView `json:"status_effects"`
}

type combatView struct {
	ID          string          `json:"id"`
	SceneID     string          `json:"scene_id"`
	Round       int             `json:"round"`
	Turn        int             `json:"turn"`
	Started     bool            `json:"started"`
	Version     int64           `json:"version"`
	CurrentTick int             `json:"current_tick"`
	ActingID    string          `json:"acting_id,omitempty"`
	Combatants  []combatantView `json:"combatants"`
}

func stateName(k combat.InitiativeKind) string {
	switch k {
	case combat.KindScheduled:
		return "scheduled"
	case combat.KindWaiting:
		return "wait"
	case combat.KindKeepingReady:
		return "keep_ready"
	default:
		return "unset"
	}
}

func viewCombat(c *combat.Combat) combatView {
	v := combatView{
		ID:          c.ID,
		SceneID:     c.SceneID,
		Round:       c.Round,
		Turn:        c.Turn,
		Started:     c.Started,
		Version:     c.Version,
		CurrentTick: c.CurrentTick(),
		Combatants:  make([]combatantView, 0, len(c.Turns)),
	}
	if a := c.Acting(); a != nil && c.Started {
		v.ActingID = a.ID
	}
	for _, cb := range c.Turns {
		cv := combatantView{
			ID:              cb.ID,
			ActorID:         cb.Actor.ID,
			Name:            cb.Actor.Name,
			Intuition:       cb.Actor.Intuition,
			InitiativeValue: cb.Actor.InitiativeValue,
			PlayerOwned:     cb.Actor.PlayerOwned,
			OwnerIDs:        append([]string{}, cb.Actor.OwnerIDs...),
			State:           stateName(cb.Initiative.Kind()),
			Defeated:        cb.Defeated,
			Hidden:          cb.Hidden,
			StatusEffects:   make([]effectView, 0, len(cb.Actor.StatusEffects)),
		}
		if cb.Initiative.IsScheduled() {
			ini := cb.Initiative.Value()
			cv.Initiative = &ini
		}
		for _, e := range cb.Actor.StatusEffects {
			cv.StatusEffects = append(cv.StatusEffects, effectView(e))
		}
		v.Combatants = append(v.Combatants, cv)
	}
	return v
}
