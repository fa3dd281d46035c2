package storage

import (
	"context"
	"sync"
	"time"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

// PipelineRepository persists pipeline.Definition records.
type PipelineRepository interface {
	Save(ctx context.Context, def pipeline.Definition) error
	Get(ctx context.Context, id string) (pipeline.Definition, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// PipelineJSONRepository is the JSON-file PipelineRepository.
type PipelineJSONRepository struct {
	store *JSONStore
}

// NewPipelineJSONRepository creates a file-backed pipeline repository
// rooted at dir.
func NewPipelineJSONRepository(dir string, log *logging.Logger) (*PipelineJSONRepository, error) {
	store, err := NewJSONStore(dir, "pipeline", log)
	if err != nil {
		return nil, err
	}
	return &PipelineJSONRepository{store: store}, nil
}

func (r *PipelineJSONRepository) Save(_ context.Context, def pipeline.Definition) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if def.CreatedAt == "" {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	return r.store.Save(def.PipelineID, def.Name, def)
}

func (r *PipelineJSONRepository) Get(_ context.Context, id string) (pipeline.Definition, error) {
	var def pipeline.Definition
	if err := r.store.Load(id, &def); err != nil {
		return pipeline.Definition{}, err
	}
	return def, nil
}

func (r *PipelineJSONRepository) List(_ context.Context) ([]Summary, error) {
	return r.store.List(), nil
}

func (r *PipelineJSONRepository) Delete(_ context.Context, id string) (bool, error) {
	return r.store.Delete(id)
}

// PipelineMemoryRepository is an in-memory PipelineRepository for tests,
// matching the teacher's Memory storage pattern.
type PipelineMemoryRepository struct {
	mu   sync.RWMutex
	data map[string]pipeline.Definition
}

// NewPipelineMemoryRepository creates an empty in-memory repository.
func NewPipelineMemoryRepository() *PipelineMemoryRepository {
	return &PipelineMemoryRepository{data: make(map[string]pipeline.Definition)}
}

func (r *PipelineMemoryRepository) Save(_ context.Context, def pipeline.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	if existing, ok := r.data[def.PipelineID]; ok {
		def.CreatedAt = existing.CreatedAt
	} else {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	r.data[def.PipelineID] = def
	return nil
}

func (r *PipelineMemoryRepository) Get(_ context.Context, id string) (pipeline.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.data[id]
	if !ok {
		return pipeline.Definition{}, apperrors.NotFound("pipeline", id)
	}
	return def, nil
}

func (r *PipelineMemoryRepository) List(_ context.Context) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.data))
	for _, def := range r.data {
		out = append(out, Summary{ID: def.PipelineID, Name: def.Name, CreatedAt: def.CreatedAt, UpdatedAt: def.UpdatedAt})
	}
	return out, nil
}

func (r *PipelineMemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return false, nil
	}
	delete(r.data, id)
	return true, nil
}
