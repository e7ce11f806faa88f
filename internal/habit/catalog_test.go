package habit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogOrderAndTargets(t *testing.T) {
	catalog := DefaultCatalog()
	keys := catalog.Keys()
	if len(keys) != 3 || keys[0] != "water" || keys[1] != "protein" || keys[2] != "exercise" {
		t.Fatalf("unexpected key order: %v", keys)
	}
	water, ok := catalog.Get("water")
	if !ok || water.Target != 64 || water.Unit != "fl oz" {
		t.Fatalf("unexpected water goal: %+v", water)
	}
	if catalog.Has("sleep") {
		t.Fatal("catalog should not contain unregistered goals")
	}
}

func TestLoadCatalogAcceptsValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goals.json")
	doc := `{
		"reading": {"name": "Reading", "target": 20, "unit": "pages", "glyph": "📚"},
		"water": {"name": "Water", "target": 64, "unit": "fl oz"}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("Len = %d, want 2", catalog.Len())
	}
	reading, ok := catalog.Get("reading")
	if !ok || reading.Target != 20 || reading.Unit != "pages" {
		t.Fatalf("unexpected reading goal: %+v", reading)
	}
}

func TestLoadCatalogRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing target": `{"water": {"name": "Water", "unit": "fl oz"}}`,
		"zero target":    `{"water": {"name": "Water", "target": 0, "unit": "fl oz"}}`,
		"bad key":        `{"Water Goal": {"name": "Water", "target": 64, "unit": "fl oz"}}`,
		"empty catalog":  `{}`,
		"unknown field":  `{"water": {"name": "Water", "target": 64, "unit": "fl oz", "color": "blue"}}`,
		"not an object":  `["water"]`,
	}
	for name, doc := range cases {
		path := filepath.Join(t.TempDir(), "goals.json")
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("write catalog file: %v", err)
		}
		if _, err := LoadCatalog(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
