package habit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Goal is one tracked recurring metric with a daily numeric target.
type Goal struct {
	Name   string  `json:"name"`
	Target float64 `json:"target"`
	Unit   string  `json:"unit"`
	Glyph  string  `json:"glyph,omitempty"`
}

// Catalog is the closed set of goals for a session. Process-wide
// configuration, read-only after load.
type Catalog struct {
	keys  []string
	goals map[string]Goal
}

func NewCatalog(goals map[string]Goal, order []string) Catalog {
	keys := make([]string, 0, len(goals))
	seen := map[string]bool{}
	for _, key := range order {
		if _, ok := goals[key]; ok && !seen[key] {
			keys = append(keys, key)
			seen[key] = true
		}
	}
	rest := make([]string, 0, len(goals))
	for key := range goals {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	copied := make(map[string]Goal, len(goals))
	for key, goal := range goals {
		copied[key] = goal
	}
	return Catalog{keys: keys, goals: copied}
}

func DefaultCatalog() Catalog {
	return NewCatalog(map[string]Goal{
		"water":    {Name: "Water", Target: 64, Unit: "fl oz", Glyph: "💧"},
		"protein":  {Name: "Protein", Target: 100, Unit: "g", Glyph: "💪"},
		"exercise": {Name: "Exercise", Target: 30, Unit: "min", Glyph: "🏃"},
	}, []string{"water", "protein", "exercise"})
}

func (c Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

func (c Catalog) Get(key string) (Goal, bool) {
	goal, ok := c.goals[key]
	return goal, ok
}

func (c Catalog) Has(key string) bool {
	_, ok := c.goals[key]
	return ok
}

func (c Catalog) Len() int {
	return len(c.keys)
}

const catalogSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "minProperties": 1,
  "propertyNames": {"pattern": "^[a-z][a-z0-9_]*$"},
  "additionalProperties": {
    "type": "object",
    "required": ["name", "target", "unit"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "target": {"type": "number", "exclusiveMinimum": 0},
      "unit": {"type": "string", "minLength": 1},
      "glyph": {"type": "string"}
    },
    "additionalProperties": false
  }
}`

// LoadCatalog reads a goal catalog from a JSON file keyed by goal key.
// The file is validated against the embedded schema before use.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read goal catalog: %w", err)
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(catalogSchema))
	if err != nil {
		return Catalog{}, fmt.Errorf("parse catalog schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.schema.json", schemaDoc); err != nil {
		return Catalog{}, fmt.Errorf("register catalog schema: %w", err)
	}
	schema, err := compiler.Compile("catalog.schema.json")
	if err != nil {
		return Catalog{}, fmt.Errorf("compile catalog schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Catalog{}, fmt.Errorf("parse goal catalog: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return Catalog{}, fmt.Errorf("invalid goal catalog: %w", err)
	}
	var goals map[string]Goal
	if err := json.Unmarshal(data, &goals); err != nil {
		return Catalog{}, fmt.Errorf("decode goal catalog: %w", err)
	}
	return NewCatalog(goals, nil), nil
}
