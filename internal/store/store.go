// Package store persists blueprints and their lifecycle events.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

var (
	// ErrNotFound is returned when no blueprint has the requested id.
	ErrNotFound = errors.New("blueprint not found")
	// ErrVersionConflict is returned by Replace when the stored version is
	// not the one the caller read.
	ErrVersionConflict = errors.New("blueprint version conflict")
)

// Blueprint is a saved exam matrix: the rows a teacher edits plus the most
// recent allocation report.
type Blueprint struct {
	ID        string                `json:"id"`
	ExamName  string                `json:"exam_name"`
	Grade     string                `json:"grade"`
	Ratio     blueprint.RatioOption `json:"ratio"`
	FinalExam bool                  `json:"final_exam"`
	Rows      []blueprint.Row       `json:"rows"`
	Report    *blueprint.Report     `json:"report,omitempty"`
	Version   int                   `json:"version"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Clone returns a deep copy.
func (b Blueprint) Clone() Blueprint {
	b.Rows = blueprint.CloneRows(b.Rows)
	if b.Report != nil {
		rep := *b.Report
		rep.Unmet = slices.Clone(rep.Unmet)
		b.Report = &rep
	}
	return b
}

// Store persists blueprints.
type Store interface {
	// Create assigns an id, version 1 and timestamps.
	Create(ctx context.Context, bp Blueprint) (Blueprint, error)
	Get(ctx context.Context, id string) (Blueprint, error)
	// List returns blueprints, most recently updated first.
	List(ctx context.Context) ([]Blueprint, error)
	// Replace overwrites the blueprint only if its stored version equals
	// expectedVersion, and bumps the version.
	Replace(ctx context.Context, bp Blueprint, expectedVersion int) (Blueprint, error)
	Delete(ctx context.Context, id string) error
}

// normalizeID parses id as a uuid. Anything unparsable cannot exist.
func normalizeID(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrNotFound
	}
	return u.String(), nil
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	blueprints map[string]Blueprint
	mu         sync.RWMutex
	now        func() time.Time
}

// NewMemoryStore creates a new in-memory blueprint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blueprints: make(map[string]Blueprint),
		now:        time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, bp Blueprint) (Blueprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bp = bp.Clone()
	bp.ID = uuid.NewString()
	bp.Version = 1
	bp.CreatedAt = s.now().UTC()
	bp.UpdatedAt = bp.CreatedAt
	if bp.Rows == nil {
		bp.Rows = []blueprint.Row{}
	}
	s.blueprints[bp.ID] = bp
	return bp.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Blueprint, error) {
	key, err := normalizeID(id)
	if err != nil {
		return Blueprint{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bp, ok := s.blueprints[key]
	if !ok {
		return Blueprint{}, ErrNotFound
	}
	return bp.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Blueprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Blueprint, 0, len(s.blueprints))
	for _, bp := range s.blueprints {
		out = append(out, bp.Clone())
	}
	slices.SortFunc(out, func(a, b Blueprint) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) Replace(_ context.Context, bp Blueprint, expectedVersion int) (Blueprint, error) {
	key, err := normalizeID(bp.ID)
	if err != nil {
		return Blueprint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.blueprints[key]
	if !ok {
		return Blueprint{}, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return Blueprint{}, ErrVersionConflict
	}

	bp = bp.Clone()
	bp.ID = key
	bp.CreatedAt = cur.CreatedAt
	bp.UpdatedAt = s.now().UTC()
	bp.Version = cur.Version + 1
	s.blueprints[key] = bp
	return bp.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blueprints[key]; !ok {
		return ErrNotFound
	}
	delete(s.blueprints, key)
	return nil
}
