package sequin

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type (
	// PatternRecord is the persisted form of a pattern. Pos -1 means "do not
	// move the pattern when loading", used for clipboard and drag payloads.
	// Frozen is informational only.
	PatternRecord struct {
		Type   PatternType  `yaml:"type" json:"type"`
		Name   string       `yaml:"name" json:"name"`
		Pos    int          `yaml:"pos" json:"pos"`
		Len    int          `yaml:"len" json:"len"`
		Muted  bool         `yaml:"muted,omitempty" json:"muted,omitempty"`
		Steps  int          `yaml:"steps" json:"steps"`
		Frozen bool         `yaml:"frozen,omitempty" json:"frozen,omitempty"`
		Notes  []NoteRecord `yaml:"notes,omitempty" json:"notes,omitempty"`
	}

	// NoteRecord is the persisted form of a note. Len is the signed length:
	// positive for held notes, ActiveStepLength for active steps.
	NoteRecord struct {
		Pos int `yaml:"pos" json:"pos"`
		Len int `yaml:"len" json:"len"`
		Key int `yaml:"key" json:"key"`
		Vol int `yaml:"vol" json:"vol"`
	}
)

// ReadPattern parses a pattern record from YAML. JSON is tried if the data is
// not valid YAML.
func ReadPattern(r io.Reader) (PatternRecord, error) {
	var rec PatternRecord
	data, err := io.ReadAll(r)
	if err != nil {
		return rec, fmt.Errorf("could not read pattern: %w", err)
	}
	if errYaml := yaml.Unmarshal(data, &rec); errYaml != nil {
		rec = PatternRecord{}
		if errJson := json.Unmarshal(data, &rec); errJson != nil {
			return rec, fmt.Errorf("pattern could not be unmarshaled: %v / %v", errYaml, errJson)
		}
	}
	return rec, nil
}

// WritePattern writes the record as YAML.
func WritePattern(w io.Writer, rec PatternRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("could not marshal pattern: %w", err)
	}
	return enc.Close()
}
