package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownMapping = errors.New("unknown mapping")

// Mapping binds a mapping identifier to the index it targets and the
// schema applied to that index whenever it is recreated.
type Mapping struct {
	ID    string
	Index string
	// Type is the document type label sent with each index request. Leave it
	// empty for Elasticsearch 8 and later, which reject typed requests.
	Type     string
	Settings json.RawMessage
	Schema   json.RawMessage
}

// IndexName returns the target index, defaulting to the lower-cased ID.
func (m Mapping) IndexName() string {
	if m.Index != "" {
		return m.Index
	}
	return strings.ToLower(m.ID)
}

func (m Mapping) Validate() error {
	if m.ID == "" {
		return errors.New("mapping id is required")
	}
	if len(m.Settings) > 0 && !json.Valid(m.Settings) {
		return fmt.Errorf("mapping %q: settings are not valid JSON", m.ID)
	}
	if len(m.Schema) > 0 && !json.Valid(m.Schema) {
		return fmt.Errorf("mapping %q: schema is not valid JSON", m.ID)
	}
	return nil
}

type Registry struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
}

func NewRegistry(mappings ...Mapping) (*Registry, error) {
	r := &Registry{mappings: make(map[string]Mapping)}
	for _, m := range mappings {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds m, replacing any mapping already registered under the same ID.
func (r *Registry) Register(m Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[m.ID] = m
	return nil
}

func (r *Registry) Resolve(id string) (Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[id]
	if !ok {
		return Mapping{}, fmt.Errorf("%w: %q", ErrUnknownMapping, id)
	}
	return m, nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.mappings))
	for id := range r.mappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
