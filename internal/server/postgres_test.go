package server

import (
	"database/sql"
	"errors"
	"testing"
)

func TestNewPostgresStateBackendRejectsEmptyDSN(t *testing.T) {
	if _, err := NewPostgresStateBackend(" "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestPostgresBackendPropagatesOpenFailure(t *testing.T) {
	backend := &PostgresStateBackend{
		dsn: "postgres://localhost/habits",
		openDB: func(driverName, dsn string) (*sql.DB, error) {
			if driverName != "postgres" {
				t.Errorf("driver = %q, want postgres", driverName)
			}
			return nil, errors.New("connection refused")
		},
	}
	if _, err := backend.Load(); err == nil {
		t.Fatal("Load should surface the open failure")
	}
	// The failure is sticky; Save reports it without re-dialing.
	if err := backend.Save(&persistedState{Users: map[string]*userState{}}); err == nil {
		t.Fatal("Save should surface the open failure")
	}
}
