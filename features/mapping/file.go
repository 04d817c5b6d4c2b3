package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	ID       string         `yaml:"id"`
	Index    string         `yaml:"index"`
	Type     string         `yaml:"type"`
	Settings map[string]any `yaml:"settings"`
	Schema   map[string]any `yaml:"schema"`
}

type file struct {
	Mappings []fileEntry `yaml:"mappings"`
}

// Decode reads a YAML mappings document:
//
//	mappings:
//	  - id: book
//	    index: book
//	    settings:
//	      number_of_shards: 1
//	    schema:
//	      properties:
//	        isbn: {type: keyword}
func Decode(r io.Reader) ([]Mapping, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}

	out := make([]Mapping, 0, len(f.Mappings))
	for _, e := range f.Mappings {
		m := Mapping{ID: e.ID, Index: e.Index, Type: e.Type}
		var err error
		if m.Settings, err = toJSON(e.Settings); err != nil {
			return nil, fmt.Errorf("mapping %q settings: %w", e.ID, err)
		}
		if m.Schema, err = toJSON(e.Schema); err != nil {
			return nil, fmt.Errorf("mapping %q schema: %w", e.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadFile decodes the mappings file at path into a new Registry.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(filepath.Clean(path)) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mappings, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewRegistry(mappings...)
}

func toJSON(v map[string]any) (json.RawMessage, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
