package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"invoicer/internal/core"
)

// SeedFile is the optional JSON array of documents loaded by NewFromFiles.
const SeedFile = "seed_documents.json"

type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]core.Document // tenant -> id -> document
	now  func() time.Time
}

func New(seed ...core.Document) *Store {
	s := &Store{docs: make(map[string]map[string]core.Document), now: time.Now}
	for _, d := range seed {
		s.tenant(d.TenantID)[d.ID] = d
	}
	return s
}

// NewFromFiles seeds the store from base/seed_documents.json when present.
func NewFromFiles(base string) (*Store, error) {
	raw, err := os.ReadFile(filepath.Join(base, SeedFile))
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed []core.Document
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", SeedFile, err)
	}
	return New(seed...), nil
}

func (s *Store) tenant(id string) map[string]core.Document {
	m, ok := s.docs[id]
	if !ok {
		m = make(map[string]core.Document)
		s.docs[id] = m
	}
	return m
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// Get returns a copy of the stored document.
func (s *Store) Get(_ context.Context, tenantID, id string) (core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[tenantID][id]
	if !ok || d.Deleted {
		return core.Document{}, core.ErrNotFound
	}
	return clone(d), nil
}

func (s *Store) List(_ context.Context, f core.Filter) ([]core.Document, error) {
	if f.TenantID == "" {
		return nil, core.ErrMissingTenant
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Document, 0, len(s.docs[f.TenantID]))
	for _, d := range s.docs[f.TenantID] {
		if f.Match(d) {
			out = append(out, clone(d))
		}
	}
	core.Sort(out, core.SortIssueDate, true)
	return out, nil
}

// Tenants implements ports.TenantLister.
func (s *Store) Tenants(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for tenant, docs := range s.docs {
		for _, d := range docs {
			if !d.Deleted {
				out = append(out, tenant)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Create(_ context.Context, d core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.tenant(d.TenantID)
	if _, ok := m[d.ID]; ok {
		return fmt.Errorf("document %s already exists", d.ID)
	}
	if err := checkNumber(m, d); err != nil {
		return err
	}
	m[d.ID] = clone(d)
	return nil
}

func (s *Store) Update(_ context.Context, d core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.docs[d.TenantID]
	prev, ok := m[d.ID]
	if !ok || prev.Deleted {
		return core.ErrNotFound
	}
	if err := checkNumber(m, d); err != nil {
		return err
	}
	m[d.ID] = clone(d)
	return nil
}

func (s *Store) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[tenantID][id]
	if !ok || d.Deleted {
		return core.ErrNotFound
	}
	d.Deleted = true
	d.UpdatedAt = s.now()
	s.docs[tenantID][id] = d
	return nil
}

func checkNumber(m map[string]core.Document, d core.Document) error {
	for id, other := range m {
		if id != d.ID && !other.Deleted && other.Kind == d.Kind && other.Number == d.Number {
			return fmt.Errorf("%w: %s", core.ErrDuplicateNumber, d.Number)
		}
	}
	return nil
}

// clone copies the slices and detail blocks so callers cannot mutate
// stored state.
func clone(d core.Document) core.Document {
	d.Items = append([]core.LineItem(nil), d.Items...)
	raw, err := json.Marshal(d.Details)
	if err == nil {
		var details core.CategoryDetails
		if json.Unmarshal(raw, &details) == nil {
			d.Details = details
		}
	}
	return d
}
