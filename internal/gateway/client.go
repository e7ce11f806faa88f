// Package gateway is the thin transport to the authoritative store. It
// attaches the session credential, maps failures to the shared error
// taxonomy, and hides the legacy aggregate wire shape behind the
// representation adapter. It never retries; retry policy belongs to the
// sync engine.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
	"github.com/AryanShah2000/HabitTracker/internal/session"
	"github.com/AryanShah2000/HabitTracker/internal/wire"
)

// ErrNoCredential marks a usage error: a remote call was attempted with
// no active session. It is not a network failure.
var ErrNoCredential = errors.New("session credential required")

type Options struct {
	BaseURL    string
	Session    session.Provider
	Catalog    habit.Catalog
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

type Client struct {
	baseURL    string
	session    session.Provider
	httpClient *http.Client
	adapter    wire.Adapter
	logger     logrus.FieldLogger

	mu      sync.Mutex
	parents map[string]wire.AggregateRow
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:    baseURL,
		session:    opts.Session,
		httpClient: httpClient,
		adapter:    wire.NewAdapter(opts.Catalog),
		logger:     logger,
		parents:    map[string]wire.AggregateRow{},
	}
}

type envelope struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Activities []json.RawMessage `json:"activities,omitempty"`
	Activity   json.RawMessage   `json:"activity,omitempty"`
}

// FetchAll retrieves the full event set, normalized through the adapter.
// Aggregate parent rows seen here are retained so later per-goal edits
// and deletes can be routed back to them.
func (c *Client) FetchAll(ctx context.Context) ([]habit.ActivityEvent, error) {
	var resp envelope
	if err := c.doJSON(ctx, http.MethodGet, "/api/habits", nil, &resp); err != nil {
		return nil, err
	}
	events, parents, err := c.adapter.DecodeAll(resp.Activities)
	if err != nil {
		return nil, &habit.TransportError{Message: err.Error()}
	}
	c.mu.Lock()
	c.parents = parents
	c.mu.Unlock()
	return events, nil
}

// Create pushes a new event. The server may rewrite the identifier; the
// returned event carries the authoritative one.
func (c *Client) Create(ctx context.Context, event habit.ActivityEvent) (habit.ActivityEvent, error) {
	body := map[string]any{"activity": c.adapter.EncodeEvent(event)}
	var resp envelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/habits", body, &resp); err != nil {
		return habit.ActivityEvent{}, err
	}
	return c.decodeSingle(resp.Activity)
}

// Update replaces an event in place. When the identifier is synthetic the
// change is routed to the matching per-goal slot of the parent aggregate
// row instead.
func (c *Client) Update(ctx context.Context, id string, event habit.ActivityEvent) (habit.ActivityEvent, error) {
	if rowID, goal, ok := c.adapter.ParseSyntheticID(id); ok {
		parent, err := c.ensureParent(ctx, rowID)
		if err != nil {
			return habit.ActivityEvent{}, err
		}
		updated := c.adapter.SetGoal(parent, goal, event.Amount, event.Description)
		if err := c.putRow(ctx, updated); err != nil {
			return habit.ActivityEvent{}, err
		}
		event.ID = id
		return event, nil
	}

	body := map[string]any{"id": id, "activity": c.adapter.EncodeEvent(event)}
	var resp envelope
	if err := c.doJSON(ctx, http.MethodPut, "/api/habits", body, &resp); err != nil {
		return habit.ActivityEvent{}, err
	}
	return c.decodeSingle(resp.Activity)
}

// Delete removes an event. A synthetic identifier zeroes that goal's
// stored amount on the parent row; the row and its other goals survive.
// A true event-shape delete removes the row outright.
func (c *Client) Delete(ctx context.Context, id string) error {
	if rowID, goal, ok := c.adapter.ParseSyntheticID(id); ok {
		parent, err := c.ensureParent(ctx, rowID)
		if err != nil {
			return err
		}
		return c.putRow(ctx, c.adapter.ZeroGoal(parent, goal))
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/habits", map[string]any{"id": id}, &envelope{})
}

// IsReachable probes the health endpoint with a short deadline.
func (c *Client) IsReachable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (c *Client) putRow(ctx context.Context, row wire.AggregateRow) error {
	body := map[string]any{"id": row.ID, "activity": c.adapter.EncodeRow(row)}
	if err := c.doJSON(ctx, http.MethodPut, "/api/habits", body, &envelope{}); err != nil {
		return err
	}
	c.mu.Lock()
	c.parents[row.ID] = row
	c.mu.Unlock()
	return nil
}

// ensureParent returns the cached aggregate row, refreshing the full set
// when the row was seen before this process started.
func (c *Client) ensureParent(ctx context.Context, rowID string) (wire.AggregateRow, error) {
	c.mu.Lock()
	parent, ok := c.parents[rowID]
	c.mu.Unlock()
	if ok {
		return parent, nil
	}
	if _, err := c.FetchAll(ctx); err != nil {
		return wire.AggregateRow{}, err
	}
	c.mu.Lock()
	parent, ok = c.parents[rowID]
	c.mu.Unlock()
	if !ok {
		return wire.AggregateRow{}, &habit.NotFoundError{ID: rowID}
	}
	return parent, nil
}

func (c *Client) decodeSingle(raw json.RawMessage) (habit.ActivityEvent, error) {
	if len(raw) == 0 {
		return habit.ActivityEvent{}, &habit.TransportError{Message: "response carried no activity"}
	}
	events, _, err := c.adapter.Decode(raw)
	if err != nil || len(events) == 0 {
		return habit.ActivityEvent{}, &habit.TransportError{Message: "undecodable activity in response"}
	}
	return events[0], nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	token := ""
	if c.session != nil {
		token = strings.TrimSpace(c.session.Token())
	}
	if token == "" {
		return ErrNoCredential
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &habit.TransportError{Err: err}
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &habit.TransportError{Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure envelope
		_ = json.Unmarshal(payload, &failure)
		if resp.StatusCode == http.StatusNotFound {
			return &habit.NotFoundError{}
		}
		return &habit.TransportError{StatusCode: resp.StatusCode, Message: failure.Error}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &habit.TransportError{Err: err, Message: "malformed response payload"}
	}
	return nil
}
