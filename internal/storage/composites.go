package storage

import (
	"context"
	"sync"
	"time"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/domain/composite"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

// CompositeRepository persists composite.Definition records and satisfies
// internal/executor.CompositeLoader.
type CompositeRepository interface {
	Save(ctx context.Context, def composite.Definition) error
	Get(ctx context.Context, id string) (composite.Definition, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CompositeJSONRepository is the JSON-file CompositeRepository.
type CompositeJSONRepository struct {
	store *JSONStore
}

// NewCompositeJSONRepository creates a file-backed composite repository
// rooted at dir.
func NewCompositeJSONRepository(dir string, log *logging.Logger) (*CompositeJSONRepository, error) {
	store, err := NewJSONStore(dir, "composite", log)
	if err != nil {
		return nil, err
	}
	return &CompositeJSONRepository{store: store}, nil
}

func (r *CompositeJSONRepository) Save(_ context.Context, def composite.Definition) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if def.CreatedAt == "" {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	return r.store.Save(def.CompositeID, def.Name, def)
}

func (r *CompositeJSONRepository) Get(_ context.Context, id string) (composite.Definition, error) {
	var def composite.Definition
	if err := r.store.Load(id, &def); err != nil {
		return composite.Definition{}, err
	}
	return def, nil
}

func (r *CompositeJSONRepository) List(_ context.Context) ([]Summary, error) {
	return r.store.List(), nil
}

func (r *CompositeJSONRepository) Delete(_ context.Context, id string) (bool, error) {
	return r.store.Delete(id)
}

// CompositeMemoryRepository is an in-memory CompositeRepository for tests.
type CompositeMemoryRepository struct {
	mu   sync.RWMutex
	data map[string]composite.Definition
}

// NewCompositeMemoryRepository creates an empty in-memory repository.
func NewCompositeMemoryRepository() *CompositeMemoryRepository {
	return &CompositeMemoryRepository{data: make(map[string]composite.Definition)}
}

func (r *CompositeMemoryRepository) Save(_ context.Context, def composite.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	if existing, ok := r.data[def.CompositeID]; ok {
		def.CreatedAt = existing.CreatedAt
	} else {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	r.data[def.CompositeID] = def
	return nil
}

func (r *CompositeMemoryRepository) Get(_ context.Context, id string) (composite.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.data[id]
	if !ok {
		return composite.Definition{}, apperrors.NotFound("composite", id)
	}
	return def, nil
}

func (r *CompositeMemoryRepository) List(_ context.Context) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.data))
	for _, def := range r.data {
		out = append(out, Summary{ID: def.CompositeID, Name: def.Name, CreatedAt: def.CreatedAt, UpdatedAt: def.UpdatedAt})
	}
	return out, nil
}

func (r *CompositeMemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return false, nil
	}
	delete(r.data, id)
	return true, nil
}

// CheckSelfReference walks the reference chain starting at def (which may
// reference other composites by id via nested composite nodes) and returns
// an error if def.CompositeID appears in its own reachable reference set —
// the static composite-reference cycle check spec.md Invariant 2 requires
// at save time, resolved via lookups against repo.
func CheckSelfReference(ctx context.Context, repo CompositeRepository, def composite.Definition) error {
	visited := map[string]bool{def.CompositeID: true}
	var walk func(d composite.Definition) error
	walk = func(d composite.Definition) error {
		for _, refID := range d.ReferencedComposites() {
			if refID == def.CompositeID {
				return apperrors.New(apperrors.CodeInvalidState,
					"composite references itself through a nested composite chain", 400).
					WithDetails("composite_id", def.CompositeID).WithDetails("cycle_through", d.CompositeID)
			}
			if visited[refID] {
				continue // already walked; a shared reference is not a cycle
			}
			visited[refID] = true
			ref, err := repo.Get(ctx, refID)
			if err != nil {
				continue // unresolved reference is reported elsewhere, not a cycle
			}
			if err := walk(ref); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(def)
}
