package status

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/notify"
	"github.com/cory-johannsen/splittermond/internal/scripting"
)

// MessageKeyTriggered is the catalog key of the activation notification.
const MessageKeyTriggered = "splittermond.statusEffectTriggered"

// HookRunner runs lua_on_trigger hooks.
type HookRunner interface {
	OnTrigger(ctx context.Context, hook string, ev scripting.TriggerEvent) (string, error)
}

// Localizer formats catalog messages.
type Localizer interface {
	Format(key string, args ...any) string
}

// Watcher tracks, for one connected user, the last tick observed per combat
// and emits a chat message for every activation that elapsed since.
type Watcher struct {
	userID string
	gm     bool
	defs   *Registry
	hooks  HookRunner
	claims *Claims
	loc    Localizer
	sink   notify.Sink
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]int
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDefinitions resolves sounds and hooks through reg.
func WithDefinitions(reg *Registry) WatcherOption { return func(w *Watcher) { w.defs = reg } }

// WithHooks runs lua_on_trigger hooks through h.
func WithHooks(h HookRunner) WatcherOption { return func(w *Watcher) { w.hooks = h } }

// WithClaims shares c with other watchers; an activation another watcher
// already announced is skipped.
func WithClaims(c *Claims) WatcherOption { return func(w *Watcher) { w.claims = c } }

// AsGameMaster makes the watcher own combatants that list no owners.
func AsGameMaster() WatcherOption { return func(w *Watcher) { w.gm = true } }

// NewWatcher creates a Watcher for userID.
//
// Precondition: loc, sink and logger must be non-nil.
func NewWatcher(userID string, loc Localizer, sink notify.Sink, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		userID: userID,
		loc:    loc,
		sink:   sink,
		logger: logger,
		defs:   NewRegistry(),
		last:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) owns(c *combat.Combatant) bool {
	if c.OwnedBy(w.userID) {
		return true
	}
	return w.gm && len(c.Actor.OwnerIDs) == 0
}

// LastObserved returns the last tick observed for combatID.
func (w *Watcher) LastObserved(combatID string) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.last[combatID]
	return t, ok
}

// SetLastObserved overrides the last observed tick for combatID.
func (w *Watcher) SetLastObserved(combatID string, tick int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last[combatID] = tick
}

// Forget drops the state kept for combatID.
func (w *Watcher) Forget(combatID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.last, combatID)
}

// Observe emits one notification per activation that elapsed since the last
// observation of s.CombatID, then records s.CurrentTick. The first
// observation of a combat only records the tick. A failing activation is
// logged and skipped.
//
// Postcondition: returns the number of notifications sent.
func (w *Watcher) Observe(ctx context.Context, s Schedule) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	last, seen := w.last[s.CombatID]
	w.last[s.CombatID] = s.CurrentTick
	if !seen {
		return 0
	}

	sent := 0
	for _, tr := range s.Triggered(last, w.owns) {
		if w.claims != nil && !w.claims.Claim(s.CombatID, tr) {
			continue
		}
		msg, err := w.message(ctx, s.CombatID, tr)
		if err != nil {
			w.logger.Warn("status trigger skipped",
				zap.String("combat_id", s.CombatID),
				zap.String("effect", tr.Token.Name),
				zap.Int("tick", tr.Tick),
				zap.Error(err),
			)
			continue
		}
		if err := w.sink.Send(ctx, msg); err != nil {
			w.logger.Warn("status notification not delivered",
				zap.String("combat_id", s.CombatID),
				zap.String("effect", tr.Token.Name),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	if sent > 0 {
		w.logger.Debug("status notifications sent",
			zap.String("user_id", w.userID),
			zap.String("combat_id", s.CombatID),
			zap.Int("from", last),
			zap.Int("to", s.CurrentTick),
			zap.Int("count", sent),
		)
	}
	return sent
}

func (w *Watcher) message(ctx context.Context, combatID string, tr Trigger) (notify.ChatMessage, error) {
	name := tr.Combatant.Actor.Name
	content := []string{w.loc.Format(MessageKeyTriggered, tr.Token.Name, tr.Token.Level, name, tr.Tick)}
	if tr.Token.Description != "" {
		content = append(content, tr.Token.Description)
	}

	def, _ := w.defs.Get(tr.Token.DefinitionID)
	if def != nil && def.LuaOnTrigger != "" && w.hooks != nil {
		extra, err := w.hooks.OnTrigger(ctx, def.LuaOnTrigger, scripting.TriggerEvent{
			CombatID:    combatID,
			CombatantID: tr.Combatant.ID,
			Combatant:   name,
			EffectID:    tr.Token.EffectID,
			Effect:      tr.Token.Name,
			Level:       tr.Token.Level,
			Tick:        tr.Tick,
		})
		if err != nil {
			return notify.ChatMessage{}, err
		}
		if extra != "" {
			content = append(content, extra)
		}
	}

	msg := notify.NewChatMessage(name, strings.Join(content, "\n"))
	msg.CombatID = combatID
	if def != nil {
		msg.Sound = def.Sound
	}
	return msg, nil
}
