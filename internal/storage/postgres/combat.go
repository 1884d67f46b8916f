package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// CombatRepository stores combats, their combatants and status effects.
// It implements combat.Repository.
type CombatRepository struct {
	db *pgxpool.Pool
}

// NewCombatRepository creates a CombatRepository backed by db.
func NewCombatRepository(db *pgxpool.Pool) *CombatRepository {
	return &CombatRepository{db: db}
}

// Create inserts c with version 1.
//
// Precondition: c.ID must be unique.
// Postcondition: c.Version is 1 on success.
func (r *CombatRepository) Create(ctx context.Context, c *combat.Combat) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO combats (id, scene_id, turn, round, started, version, next_seq)
			VALUES ($1, $2, $3, $4, $5, 1, $6)`,
			c.ID, c.SceneID, c.Turn, c.Round, c.Started, c.NextSeq,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return combat.ErrVersionConflict
			}
			return fmt.Errorf("inserting combat: %w", err)
		}
		if err := writeCombatants(ctx, tx, c); err != nil {
			return err
		}
		c.Version = 1
		return nil
	})
}

// Get loads a combat by id.
//
// Postcondition: Returns combat.ErrCombatNotFound when no row matches.
func (r *CombatRepository) Get(ctx context.Context, id string) (*combat.Combat, error) {
	return loadCombat(ctx, r.db, id)
}

// Save replaces the stored combat when its version still equals c.Version.
//
// Postcondition: On success c.Version is incremented. Returns
// combat.ErrVersionConflict when another writer saved first and
// combat.ErrCombatNotFound when the combat was deleted.
func (r *CombatRepository) Save(ctx context.Context, c *combat.Combat) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE combats
			SET turn = $3, round = $4, started = $5, next_seq = $6,
			    version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2`,
			c.ID, c.Version, c.Turn, c.Round, c.Started, c.NextSeq,
		)
		if err != nil {
			return fmt.Errorf("updating combat: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM combats WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
				return fmt.Errorf("checking combat: %w", err)
			}
			if !exists {
				return combat.ErrCombatNotFound
			}
			return combat.ErrVersionConflict
		}
		if _, err := tx.Exec(ctx, `DELETE FROM combatants WHERE combat_id = $1`, c.ID); err != nil {
			return fmt.Errorf("clearing combatants: %w", err)
		}
		return writeCombatants(ctx, tx, c)
	})
	if err != nil {
		return err
	}
	c.Version++
	return nil
}

// Delete removes a combat and everything attached to it.
func (r *CombatRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM combats WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting combat: %w", err)
	}
	return nil
}

// ListByScene returns the combats of sceneID in creation order.
func (r *CombatRepository) ListByScene(ctx context.Context, sceneID string) ([]*combat.Combat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM combats WHERE scene_id = $1 ORDER BY created_at, id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("listing combats: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning combat ids: %w", err)
	}

	out := make([]*combat.Combat, 0, len(ids))
	for _, id := range ids {
		c, err := loadCombat(ctx, r.db, id)
		if errors.Is(err, combat.ErrCombatNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func loadCombat(ctx context.Context, q querier, id string) (*combat.Combat, error) {
	c := &combat.Combat{}
	err := q.QueryRow(ctx, `
		SELECT id, scene_id, turn, round, started, version, next_seq
		FROM combats WHERE id = $1`, id,
	).Scan(&c.ID, &c.SceneID, &c.Turn, &c.Round, &c.Started, &c.Version, &c.NextSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, combat.ErrCombatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading combat: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, seq, actor_id, name, intuition, initiative_value, player_owned,
		       owner_ids, initiative_kind, initiative, defeated, hidden
		FROM combatants WHERE combat_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("loading combatants: %w", err)
	}
	byID := make(map[string]*combat.Combatant)
	for rows.Next() {
		var (
			cb   combat.Combatant
			kind int16
			ini  float64
		)
		if err := rows.Scan(&cb.ID, &cb.Seq, &cb.Actor.ID, &cb.Actor.Name, &cb.Actor.Intuition,
			&cb.Actor.InitiativeValue, &cb.Actor.PlayerOwned, &cb.Actor.OwnerIDs,
			&kind, &ini, &cb.Defeated, &cb.Hidden); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning combatant: %w", err)
		}
		cb.Initiative = combat.Restore(combat.InitiativeKind(kind), ini)
		c.Turns = append(c.Turns, &cb)
		byID[cb.ID] = &cb
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating combatants: %w", err)
	}
	if len(c.Turns) == 0 {
		return c, nil
	}

	rows, err = q.Query(ctx, `
		SELECT e.combatant_id, e.id, e.definition_id, e.name, e.description, e.level,
		       e.start_tick, e.tick_interval, e.times
		FROM status_effects e
		JOIN combatants cb ON cb.id = e.combatant_id
		WHERE cb.combat_id = $1
		ORDER BY e.combatant_id, e.position`, id)
	if err != nil {
		return nil, fmt.Errorf("loading status effects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			owner string
			e     combat.StatusEffect
		)
		if err := rows.Scan(&owner, &e.ID, &e.DefinitionID, &e.Name, &e.Description,
			&e.Level, &e.StartTick, &e.Interval, &e.Times); err != nil {
			return nil, fmt.Errorf("scanning status effect: %w", err)
		}
		if cb, ok := byID[owner]; ok {
			cb.Actor.StatusEffects = append(cb.Actor.StatusEffects, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status effects: %w", err)
	}
	return c, nil
}

// writeCombatants inserts every combatant of c and its status effects in a
// single batch, preserving turn order through the position column.
func writeCombatants(ctx context.Context, q querier, c *combat.Combat) error {
	if len(c.Turns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for pos, cb := range c.Turns {
		owners := cb.Actor.OwnerIDs
		if owners == nil {
			owners = []string{}
		}
		ini := cb.Initiative.Value()
		if !cb.Initiative.IsScheduled() {
			ini = 0
		}
		batch.Queue(`
			INSERT INTO combatants (id, combat_id, position, seq, actor_id, name, intuition,
			    initiative_value, player_owned, owner_ids, initiative_kind, initiative,
			    defeated, hidden)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			cb.ID, c.ID, pos, cb.Seq, cb.Actor.ID, cb.Actor.Name, cb.Actor.Intuition,
			cb.Actor.InitiativeValue, cb.Actor.PlayerOwned, owners,
			int16(cb.Initiative.Kind()), ini, cb.Defeated, cb.Hidden,
		)
		for epos, e := range cb.Actor.StatusEffects {
			batch.Queue(`
				INSERT INTO status_effects (id, combatant_id, position, definition_id, name,
				    description, level, start_tick, tick_interval, times)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				e.ID, cb.ID, epos, e.DefinitionID, e.Name, e.Description,
				e.Level, e.StartTick, e.Interval, e.Times,
			)
		}
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing combatants: %w", err)
	}
	return nil
}
