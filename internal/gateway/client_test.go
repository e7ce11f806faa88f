package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
	"github.com/AryanShah2000/HabitTracker/internal/session"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(Options{
		BaseURL: server.URL,
		Session: session.NewStatic("test-token"),
		Catalog: habit.DefaultCatalog(),
	})
	return client, server
}

func TestFetchAllNormalizesBothShapes(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"success": true, "activities": [
			{"id": "e1", "goal": "water", "date": "2026-08-29", "amount": 20},
			{"id": 17, "date": "2026-08-28", "water": 40, "protein": 50, "exercise": 0}
		]}`))
	}))

	events, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	ids := map[string]bool{}
	for _, event := range events {
		ids[event.ID] = true
	}
	for _, want := range []string{"e1", "17-water", "17-protein"} {
		if !ids[want] {
			t.Fatalf("missing event %s in %v", want, ids)
		}
	}
}

func TestCreateReturnsServerAssignedID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body struct {
			Activity map[string]any `json:"activity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		body.Activity["id"] = "server-uuid"
		json.NewEncoder(w).Encode(map[string]any{"success": true, "activity": body.Activity})
	}))

	created, err := client.Create(context.Background(), habit.ActivityEvent{
		ID: "1756450800000", Goal: "water", Date: "2026-08-29", Amount: 8,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID != "server-uuid" {
		t.Fatalf("created id = %s, want server-uuid", created.ID)
	}
}

func TestSyntheticDeleteZeroesGoalColumn(t *testing.T) {
	var putBody map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"success": true, "activities": [
				{"id": 17, "date": "2026-08-28", "water": 40, "protein": 50}
			]}`))
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&putBody); err != nil {
				t.Errorf("decode put body: %v", err)
			}
			w.Write([]byte(`{"success": true}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	ctx := context.Background()
	if _, err := client.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if err := client.Delete(ctx, "17-water"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	activity, ok := putBody["activity"].(map[string]any)
	if !ok {
		t.Fatalf("put body carried no activity: %v", putBody)
	}
	if activity["water"] != 0.0 {
		t.Fatalf("water column = %v, want 0", activity["water"])
	}
	if activity["protein"] != 50.0 {
		t.Fatalf("sibling protein column = %v, want 50", activity["protein"])
	}
}

func TestSyntheticUpdateRefetchesUnknownParent(t *testing.T) {
	fetches := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fetches++
			w.Write([]byte(`{"success": true, "activities": [
				{"id": 17, "date": "2026-08-28", "water": 40}
			]}`))
		case http.MethodPut:
			w.Write([]byte(`{"success": true}`))
		}
	}))

	updated, err := client.Update(context.Background(), "17-water", habit.ActivityEvent{
		Goal: "water", Date: "2026-08-28", Amount: 64,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("parent cache miss caused %d fetches, want 1", fetches)
	}
	if updated.ID != "17-water" {
		t.Fatalf("updated id = %s, want 17-water", updated.ID)
	}
}

func TestDeleteUnknownParentReportsNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "activities": []}`))
	}))
	err := client.Delete(context.Background(), "99-water")
	if !errors.Is(err, habit.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestErrorMapping(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success": false, "error": "Activity not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"success": false, "error": "boom"}`))
		}
	}))

	ctx := context.Background()
	if err := client.Delete(ctx, "gone"); !errors.Is(err, habit.ErrNotFound) {
		t.Fatalf("404 mapped to %v, want ErrNotFound", err)
	}
	_, err := client.FetchAll(ctx)
	if !errors.Is(err, habit.ErrTransport) {
		t.Fatalf("500 mapped to %v, want ErrTransport", err)
	}
	var transport *habit.TransportError
	if !errors.As(err, &transport) || transport.StatusCode != http.StatusInternalServerError {
		t.Fatalf("transport error detail missing: %v", err)
	}
}

func TestMissingCredentialFailsBeforeNetwork(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()
	client := New(Options{
		BaseURL: server.URL,
		Session: session.NewStatic(""),
		Catalog: habit.DefaultCatalog(),
	})
	if _, err := client.FetchAll(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("error = %v, want ErrNoCredential", err)
	}
	if requests != 0 {
		t.Fatalf("request reached the server despite missing credential")
	}
}

func TestIsReachable(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("probe hit %s", r.URL.Path)
		}
	}))
	if !client.IsReachable(context.Background()) {
		t.Fatal("healthy server reported unreachable")
	}
	server.Close()
	if client.IsReachable(context.Background()) {
		t.Fatal("closed server reported reachable")
	}
}
