package combat

import (
	"context"
	"errors"
	"sync"
)

// ErrCombatNotFound is returned when a combat lookup yields no results.
var ErrCombatNotFound = errors.New("combat not found")

// ErrVersionConflict is returned by Save when the stored combat changed since
// it was loaded.
var ErrVersionConflict = errors.New("combat version conflict")

// Repository persists combats.
//
// Implementations MUST hand out copies: mutating a returned *Combat never
// affects stored state until Save.
type Repository interface {
	// Create stores a new combat with Version 1.
	Create(ctx context.Context, c *Combat) error
	// Get returns the latest stored combat or ErrCombatNotFound.
	Get(ctx context.Context, id string) (*Combat, error)
	// Save stores c when c.Version matches the stored version, then bumps
	// c.Version. Returns ErrVersionConflict otherwise.
	Save(ctx context.Context, c *Combat) error
	// Delete removes a combat. Missing ids are not an error.
	Delete(ctx context.Context, id string) error
	// ListByScene returns the combats of a scene ordered by creation.
	ListByScene(ctx context.Context, sceneID string) ([]*Combat, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	combats map[string]*Combat
	order   []string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{combats: make(map[string]*Combat)}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, c *Combat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.combats[c.ID]; ok {
		return ErrVersionConflict
	}
	c.Version = 1
	r.combats[c.ID] = c.Clone()
	r.order = append(r.order, c.ID)
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Combat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.combats[id]
	if !ok {
		return nil, ErrCombatNotFound
	}
	return c.Clone(), nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, c *Combat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.combats[c.ID]
	if !ok {
		return ErrCombatNotFound
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	r.combats[c.ID] = c.Clone()
	return nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.combats, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListByScene implements Repository.
func (r *MemoryRepository) ListByScene(_ context.Context, sceneID string) ([]*Combat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Combat
	for _, id := range r.order {
		if c := r.combats[id]; c.SceneID == sceneID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}
