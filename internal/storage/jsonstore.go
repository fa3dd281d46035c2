// Package storage implements JSON-file persistence for pipelines and
// composites (spec.md §4.6 / SPEC_FULL §4), grounded on
// json_pipeline_repository.py / json_composite_repository.py: one file per
// record plus a "_metadata.json" sidecar index per directory, with id
// sanitization to prevent path traversal.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

// Summary is one entry in a directory's metadata index.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

const metadataFileName = "_metadata.json"

// sanitizeID keeps only [A-Za-z0-9_-], matching
// json_pipeline_repository.py's _get_file_path sanitization.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JSONStore persists JSON-marshalable records of one resource type under a
// directory, one file per record, plus a metadata sidecar index.
type JSONStore struct {
	mu        sync.Mutex
	dir       string
	resource  string
	log       *logging.Logger
}

// NewJSONStore creates a store rooted at dir, creating the directory if
// needed. resource names the kind of record for error messages (e.g.
// "pipeline", "composite").
func NewJSONStore(dir, resource string, log *logging.Logger) (*JSONStore, error) {
	if log == nil {
		log = logging.NewDefault("storage")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepositorySave, "failed to create storage directory", 500, err)
	}
	return &JSONStore{dir: dir, resource: resource, log: log}, nil
}

func (s *JSONStore) filePath(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

func (s *JSONStore) metadataPath() string {
	return filepath.Join(s.dir, metadataFileName)
}

func (s *JSONStore) loadMetadata() map[string]Summary {
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		return map[string]Summary{}
	}
	var meta map[string]Summary
	if err := json.Unmarshal(data, &meta); err != nil {
		s.log.Warnf("corrupt metadata index for %s, rebuilding on next save: %v", s.resource, err)
		return map[string]Summary{}
	}
	return meta
}

func (s *JSONStore) saveMetadata(meta map[string]Summary) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.metadataPath(), data, 0o644)
}

// Save marshals record to id's file and updates the metadata index.
// createdAt is preserved from a prior record if one already exists.
func (s *JSONStore) Save(id, name string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if existing, ok := s.loadMetadata()[id]; ok {
		createdAt = existing.CreatedAt
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepositorySave, "failed to marshal record", 500, err)
	}
	if err := os.WriteFile(s.filePath(id), data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeRepositorySave, "failed to write record file", 500, err)
	}

	meta := s.loadMetadata()
	meta[id] = Summary{ID: id, Name: name, CreatedAt: createdAt, UpdatedAt: now}
	if err := s.saveMetadata(meta); err != nil {
		return apperrors.Wrap(apperrors.CodeRepositorySave, "failed to update metadata index", 500, err)
	}
	return nil
}

// Load reads id's record file into out (a pointer). Returns NotFound if it
// doesn't exist.
func (s *JSONStore) Load(id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFound(s.resource, id)
		}
		return apperrors.Wrap(apperrors.CodeRepositorySave, "failed to read record file", 500, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.CodeRepositorySave, "failed to unmarshal record", 500, err)
	}
	return nil
}

// List returns the metadata index, sorted by id for deterministic output.
func (s *JSONStore) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.loadMetadata()
	out := make([]Summary, 0, len(meta))
	for _, v := range meta {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes id's file and metadata entry. Returns false (not an
// error) if id did not exist, matching json_pipeline_repository.py.delete's
// idempotent-false-on-missing behavior.
func (s *JSONStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filePath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		return false, apperrors.Wrap(apperrors.CodeRepositoryDelete, "failed to delete record file", 500, err)
	}

	meta := s.loadMetadata()
	if _, ok := meta[id]; ok {
		delete(meta, id)
		if err := s.saveMetadata(meta); err != nil {
			return true, apperrors.Wrap(apperrors.CodeRepositoryDelete, "failed to update metadata index", 500, err)
		}
	}
	return true, nil
}

// Exists reports whether id has a stored record.
func (s *JSONStore) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.filePath(id))
	return err == nil
}
