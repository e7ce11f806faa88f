package server

import (
	"path/filepath"
	"testing"
)

func TestBuildStateBackendFromDSN(t *testing.T) {
	cases := []struct {
		name string
		dsn  string
		want any
	}{
		{"bare path", filepath.Join(t.TempDir(), "state.json"), &JSONFileStateBackend{}},
		{"file scheme", "file://" + filepath.Join(t.TempDir(), "state.json"), &JSONFileStateBackend{}},
		{"memory", "memory://", &InMemoryStateBackend{}},
		{"mem alias", "mem://", &InMemoryStateBackend{}},
	}
	for _, c := range cases {
		backend, err := BuildStateBackendFromDSN(c.dsn)
		if err != nil {
			t.Fatalf("%s: BuildStateBackendFromDSN failed: %v", c.name, err)
		}
		switch c.want.(type) {
		case *JSONFileStateBackend:
			if _, ok := backend.(*JSONFileStateBackend); !ok {
				t.Fatalf("%s: got %T, want JSON file backend", c.name, backend)
			}
		case *InMemoryStateBackend:
			if _, ok := backend.(*InMemoryStateBackend); !ok {
				t.Fatalf("%s: got %T, want in-memory backend", c.name, backend)
			}
		}
	}
}

func TestBuildStateBackendEmptyAndUnsupported(t *testing.T) {
	backend, err := BuildStateBackendFromDSN("")
	if err != nil || backend != nil {
		t.Fatalf("empty DSN = %v, %v; want nil, nil", backend, err)
	}
	if _, err := BuildStateBackendFromDSN("carrier-pigeon://coop"); err == nil {
		t.Fatal("unsupported scheme should error")
	}
	if _, err := BuildStateBackendFromDSN("file://"); err == nil {
		t.Fatal("file DSN without a path should error")
	}
}

func TestRegisteredFactoryTakesPrecedence(t *testing.T) {
	called := false
	RegisterStateBackendFactory("custom", func(dsn string) (StateBackend, error) {
		called = true
		return NewInMemoryStateBackend(), nil
	})
	if _, err := BuildStateBackendFromDSN("custom://anywhere"); err != nil {
		t.Fatalf("custom factory failed: %v", err)
	}
	if !called {
		t.Fatal("registered factory was not invoked")
	}
}

func TestJSONFileBackendRoundTrip(t *testing.T) {
	backend := NewJSONFileStateBackend(filepath.Join(t.TempDir(), "state.json"))

	loaded, err := backend.Load()
	if err != nil || loaded != nil {
		t.Fatalf("fresh load = %v, %v; want nil, nil", loaded, err)
	}

	state := &persistedState{Users: map[string]*userState{
		"aryan": {PasswordHash: "hash"},
	}}
	if err := backend.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err = backend.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.Users["aryan"] == nil || loaded.Users["aryan"].PasswordHash != "hash" {
		t.Fatalf("round trip lost data: %+v", loaded)
	}
}
