package combat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTurnInFlight is returned by NextTurn while another turn advance for the
// same combat has not completed.
var ErrTurnInFlight = errors.New("turn advance already in flight")

// saveAttempts bounds the read-modify-write retries on version conflicts.
const saveAttempts = 3

type outcome int

const (
	unchanged outcome = iota
	changed
	roundAdvanced
)

// Tracker owns the combat state machine. Every mutation reloads the latest
// combat from the Repository, mutates a private copy, re-sorts and saves it;
// readers only ever see saved snapshots.
type Tracker struct {
	repo     Repository
	roller   InitiativeRoller
	prompt   TickPrompt
	tie      TieBreaker
	observer Observer
	logger   *zap.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inFlight map[string]bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTickPrompt sets the prompt asked when NextTurn receives no delta.
func WithTickPrompt(p TickPrompt) Option { return func(t *Tracker) { t.prompt = p } }

// WithTieBreaker sets the last-resort ordering source.
func WithTieBreaker(tb TieBreaker) Option { return func(t *Tracker) { t.tie = tb } }

// WithObserver sets the observer notified after every saved change.
func WithObserver(o Observer) Option { return func(t *Tracker) { t.observer = o } }

// NewTracker creates a Tracker.
//
// Precondition: repo, roller and logger must be non-nil.
func NewTracker(repo Repository, roller InitiativeRoller, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		repo:     repo,
		roller:   roller,
		prompt:   cancelledPrompt{},
		tie:      SequenceTieBreaker{},
		observer: NopObserver{},
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) lock(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// mutate runs fn against the latest stored combat under the combat's lock and
// saves the result, retrying when another writer saved first.
func (t *Tracker) mutate(ctx context.Context, id string, fn func(c *Combat) (outcome, error)) (*Combat, error) {
	unlock := t.lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		c, err := t.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out, err := fn(c)
		if err != nil {
			return nil, err
		}
		if out == unchanged {
			return c, nil
		}
		err = t.repo.Save(ctx, c)
		if errors.Is(err, ErrVersionConflict) && attempt < saveAttempts {
			t.logger.Debug("combat save conflict, retrying",
				zap.String("combat_id", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("saving combat %s: %w", id, err)
		}
		t.observer.CombatChanged(c.Clone())
		if out == roundAdvanced {
			t.observer.RoundAdvanced(c.Clone())
		}
		return c.Clone(), nil
	}
}

func (t *Tracker) advanceIfStarted(c *Combat) outcome {
	if c.NextRound(t.tie) {
		return roundAdvanced
	}
	SortTurns(c.Turns, t.tie)
	return changed
}

// CreateCombat stores a new, not yet started combat for sceneID.
//
// Postcondition: returned combat has a fresh uuid and Version 1.
func (t *Tracker) CreateCombat(ctx context.Context, sceneID string) (*Combat, error) {
	c := &Combat{ID: uuid.NewString(), SceneID: sceneID}
	if err := t.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating combat: %w", err)
	}
	t.logger.Info("combat created", zap.String("combat_id", c.ID), zap.String("scene_id", sceneID))
	t.observer.CombatChanged(c.Clone())
	return c.Clone(), nil
}

// EndCombat deletes combat id.
func (t *Tracker) EndCombat(ctx context.Context, id string) error {
	unlock := t.lock(id)
	defer unlock()
	c, err := t.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := t.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting combat %s: %w", id, err)
	}
	t.logger.Info("combat ended", zap.String("combat_id", id), zap.Int("round", c.Round))
	t.observer.CombatEnded(id, c.SceneID)
	return nil
}

// AddCombatant adds actor to combat id with an unset initiative.
//
// Postcondition: returns the new combatant's id.
func (t *Tracker) AddCombatant(ctx context.Context, id string, actor Actor, hidden bool) (string, error) {
	cid := uuid.NewString()
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		c.AddCombatant(cid, actor, hidden, t.tie)
		return changed, nil
	})
	if err != nil {
		return "", err
	}
	return cid, nil
}

// RemoveCombatant removes a combatant. Unknown ids are a no-op.
func (t *Tracker) RemoveCombatant(ctx context.Context, id, combatantID string) error {
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		if !c.RemoveCombatant(combatantID) {
			return unchanged, nil
		}
		return t.advanceIfStarted(c), nil
	})
	return err
}

// SetDefeated marks a combatant defeated or revives it.
func (t *Tracker) SetDefeated(ctx context.Context, id, combatantID string, defeated bool) error {
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		cbt := c.Find(combatantID)
		if cbt == nil || cbt.Defeated == defeated {
			return unchanged, nil
		}
		cbt.Defeated = defeated
		return t.advanceIfStarted(c), nil
	})
	return err
}

// SetHidden hides a combatant from players or reveals it.
func (t *Tracker) SetHidden(ctx context.Context, id, combatantID string, hidden bool) error {
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		cbt := c.Find(combatantID)
		if cbt == nil || cbt.Hidden == hidden {
			return unchanged, nil
		}
		cbt.Hidden = hidden
		return changed, nil
	})
	return err
}

// EffectFactory builds a status effect from the state of the combat it joins.
type EffectFactory func(currentTick int, started bool) StatusEffect

// AddStatusEffect attaches eff to a combatant's actor. An empty eff.ID gets a
// fresh uuid.
func (t *Tracker) AddStatusEffect(ctx context.Context, id, combatantID string, eff StatusEffect) error {
	return t.AttachStatusEffect(ctx, id, combatantID, func(int, bool) StatusEffect { return eff })
}

// AttachStatusEffect attaches the effect built by build to a combatant's
// actor. build runs under the combat lock against the state being saved, and
// again on every conflict retry. An empty ID gets a fresh uuid.
func (t *Tracker) AttachStatusEffect(ctx context.Context, id, combatantID string, build EffectFactory) error {
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		cbt := c.Find(combatantID)
		if cbt == nil {
			return unchanged, nil
		}
		eff := build(c.CurrentTick(), c.Started)
		if eff.ID == "" {
			eff.ID = uuid.NewString()
		}
		cbt.Actor.StatusEffects = append(cbt.Actor.StatusEffects, eff)
		return changed, nil
	})
	return err
}

// StartCombat activates combat id.
//
// Postcondition: Started; Round == CurrentTick; Turn == 0.
func (t *Tracker) StartCombat(ctx context.Context, id string) error {
	c, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		if c.Started {
			return unchanged, nil
		}
		c.Start(t.tie)
		return changed, nil
	})
	if err != nil {
		return err
	}
	t.logger.Info("combat started", zap.String("combat_id", id), zap.Int("round", c.Round))
	return nil
}

// SetInitiative places a combatant on the timeline, or into the waiting or
// keep-ready queue. Scheduled values are rounded to their tick and nudged by
// 0.01 past combatants already on it (earlier when placedFirst). When the
// combat has started the next round begins. Unknown combatants are a no-op.
func (t *Tracker) SetInitiative(ctx context.Context, id, combatantID string, ini Initiative, placedFirst bool) error {
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		if !c.SetInitiative(combatantID, ini, placedFirst, t.tie) {
			return unchanged, nil
		}
		t.logger.Debug("initiative set",
			zap.String("combat_id", id),
			zap.String("combatant_id", combatantID),
			zap.Stringer("initiative", c.Find(combatantID).Initiative),
		)
		return t.advanceIfStarted(c), nil
	})
	return err
}

// NextRound makes the first combatant in turn order act. No-op before the
// combat started.
func (t *Tracker) NextRound(ctx context.Context, id string) error {
	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		if !c.Started {
			return unchanged, nil
		}
		c.NextRound(t.tie)
		return roundAdvanced, nil
	})
	return err
}

// NextTurn moves the acting combatant delta ticks later. A combatant that is
// not on the timeline (waiting, keeping ready or unset) moves to the current
// tick plus delta. A nil delta asks the TickPrompt; a dismissed prompt is a
// no-op.
//
// Postcondition: returns ErrTurnInFlight while another NextTurn for id runs.
func (t *Tracker) NextTurn(ctx context.Context, id string, delta *int) error {
	t.mu.Lock()
	if t.inFlight[id] {
		t.mu.Unlock()
		return ErrTurnInFlight
	}
	t.inFlight[id] = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.inFlight, id)
		t.mu.Unlock()
	}()

	if delta == nil {
		snap, err := t.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		acting := snap.Acting()
		if acting == nil {
			return nil
		}
		d, ok, err := t.prompt.AskTickDelta(ctx, snap, acting)
		if isCancelled(ok, err) {
			t.logger.Debug("tick prompt dismissed", zap.String("combat_id", id))
			return nil
		}
		if err != nil {
			return fmt.Errorf("asking tick delta: %w", err)
		}
		delta = &d
	}

	_, err := t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		acting := c.Acting()
		if acting == nil {
			return unchanged, nil
		}
		base, ok := acting.Initiative.Tick()
		if !ok {
			base = c.CurrentTick()
		}
		c.SetInitiative(acting.ID, Scheduled(float64(base+*delta)), false, t.tie)
		return t.advanceIfStarted(c), nil
	})
	return err
}

// RollInitiative rolls a fresh initiative for each listed combatant and places
// it relative to the current tick. An empty list rolls for every combatant
// whose initiative is unset. Unknown ids are skipped.
func (t *Tracker) RollInitiative(ctx context.Context, id string, combatantIDs []string) error {
	snap, err := t.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(combatantIDs) == 0 {
		for _, cbt := range snap.Turns {
			if cbt.Initiative.Kind() == KindUnset {
				combatantIDs = append(combatantIDs, cbt.ID)
			}
		}
	}
	type rolled struct {
		id    string
		value int
	}
	var rolls []rolled
	for _, cid := range combatantIDs {
		cbt := snap.Find(cid)
		if cbt == nil {
			continue
		}
		v, err := t.roller.RollInitiative(ctx, cbt.Actor)
		if err != nil {
			return err
		}
		rolls = append(rolls, rolled{id: cid, value: v})
	}
	if len(rolls) == 0 {
		return nil
	}

	_, err = t.mutate(ctx, id, func(c *Combat) (outcome, error) {
		now := c.CurrentTick()
		applied := false
		for _, r := range rolls {
			if c.SetInitiative(r.id, Scheduled(float64(now+r.value)), false, t.tie) {
				applied = true
			}
		}
		if !applied {
			return unchanged, nil
		}
		return t.advanceIfStarted(c), nil
	})
	return err
}

// Snapshot returns the latest saved state of combat id.
func (t *Tracker) Snapshot(ctx context.Context, id string) (*Combat, error) {
	return t.repo.Get(ctx, id)
}

// CurrentTick returns the current tick of combat id.
func (t *Tracker) CurrentTick(ctx context.Context, id string) (int, error) {
	c, err := t.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return c.CurrentTick(), nil
}

// Acting returns the combatant whose turn it is, or nil for an empty combat.
func (t *Tracker) Acting(ctx context.Context, id string) (*Combatant, error) {
	c, err := t.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Acting(), nil
}

// Combats returns the combats of a scene.
func (t *Tracker) Combats(ctx context.Context, sceneID string) ([]*Combat, error) {
	return t.repo.ListByScene(ctx, sceneID)
}
