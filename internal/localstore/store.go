// Package localstore owns the client-side replica: one durable slot
// holding the full event set as last known to this client, in the event
// shape exclusively. The slot is the only live copy; the sync engine and
// the user-write handlers mutate it through this serialized API.
package localstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
)

// PendingOps records writes committed locally but not yet acknowledged by
// the remote store. They are pushed in bulk on the next sync cycle.
type PendingOps struct {
	Creates []string `json:"creates,omitempty"`
	Updates []string `json:"updates,omitempty"`
	Deletes []string `json:"deletes,omitempty"`
}

type slotState struct {
	Events  []habit.ActivityEvent `json:"events"`
	Pending PendingOps            `json:"pending"`
	Aliases map[string]string     `json:"aliases,omitempty"`
}

type Store struct {
	path   string
	logger logrus.FieldLogger

	mu            sync.Mutex
	state         slotState
	loaded        bool
	memoryOnly    bool
	lastSavedHash string
}

func New(path string, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the last persisted snapshot, or an empty set for a fresh
// slot. A corrupt or unreadable slot degrades to empty rather than
// failing the session.
func (s *Store) Load() []habit.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return s.eventsLocked()
}

// Events returns a copy of the current event set.
func (s *Store) Events() []habit.ActivityEvent {
	return s.Load()
}

// Get looks an event up by identifier, following the server-id alias map.
func (s *Store) Get(id string) (habit.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	id = s.resolveLocked(id)
	for _, event := range s.state.Events {
		if event.ID == id {
			return event, true
		}
	}
	return habit.ActivityEvent{}, false
}

// Replace atomically overwrites the event set. Pending operations and
// aliases are untouched; the caller decides their fate.
func (s *Store) Replace(events []habit.ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	s.state.Events = make([]habit.ActivityEvent, len(events))
	copy(s.state.Events, events)
	s.persistLocked()
}

// UpsertLocal inserts or replaces one event by identifier. Durability
// commits before return.
func (s *Store) UpsertLocal(event habit.ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	event.ID = s.resolveLocked(event.ID)
	for i := range s.state.Events {
		if s.state.Events[i].ID == event.ID {
			s.state.Events[i] = event
			s.persistLocked()
			return
		}
	}
	s.state.Events = append(s.state.Events, event)
	s.persistLocked()
}

// RemoveLocal drops one event by identifier.
func (s *Store) RemoveLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	id = s.resolveLocked(id)
	kept := s.state.Events[:0]
	for _, event := range s.state.Events {
		if event.ID != id {
			kept = append(kept, event)
		}
	}
	s.state.Events = kept
	s.persistLocked()
}

// Resolve maps a possibly stale client identifier to the identifier the
// server assigned on first push.
func (s *Store) Resolve(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return s.resolveLocked(id)
}

// ReassignID replaces a client-issued identifier with the server one,
// keeping an alias so concurrent local edits referencing the old id are
// not orphaned.
func (s *Store) ReassignID(oldID, newID string) {
	if oldID == "" || newID == "" || oldID == newID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	for i := range s.state.Events {
		if s.state.Events[i].ID == oldID {
			s.state.Events[i].ID = newID
		}
	}
	if s.state.Aliases == nil {
		s.state.Aliases = map[string]string{}
	}
	s.state.Aliases[oldID] = newID
	for from, to := range s.state.Aliases {
		if to == oldID {
			s.state.Aliases[from] = newID
		}
	}
	s.state.Pending.Creates = replaceID(s.state.Pending.Creates, oldID, newID)
	s.state.Pending.Updates = replaceID(s.state.Pending.Updates, oldID, newID)
	s.state.Pending.Deletes = replaceID(s.state.Pending.Deletes, oldID, newID)
	s.persistLocked()
}

func (s *Store) MarkPendingCreate(id string) {
	s.markPending(&s.state.Pending.Creates, id)
}

func (s *Store) MarkPendingUpdate(id string) {
	s.markPending(&s.state.Pending.Updates, id)
}

func (s *Store) MarkPendingDelete(id string) {
	s.markPending(&s.state.Pending.Deletes, id)
}

func (s *Store) markPending(list *[]string, id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	id = s.resolveLocked(id)
	for _, existing := range *list {
		if existing == id {
			return
		}
	}
	*list = append(*list, id)
	s.persistLocked()
}

// ClearPending acknowledges one identifier across all pending lists.
func (s *Store) ClearPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	id = s.resolveLocked(id)
	s.state.Pending.Creates = removeID(s.state.Pending.Creates, id)
	s.state.Pending.Updates = removeID(s.state.Pending.Updates, id)
	s.state.Pending.Deletes = removeID(s.state.Pending.Deletes, id)
	s.persistLocked()
}

func (s *Store) Pending() PendingOps {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return PendingOps{
		Creates: append([]string(nil), s.state.Pending.Creates...),
		Updates: append([]string(nil), s.state.Pending.Updates...),
		Deletes: append([]string(nil), s.state.Pending.Deletes...),
	}
}

// MemoryOnly reports whether the slot degraded to in-memory mode after a
// storage-medium failure.
func (s *Store) MemoryOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryOnly
}

// ReloadIfChanged re-reads the slot when another process rewrote it,
// replacing the in-memory state. Reports whether anything changed.
func (s *Store) ReloadIfChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memoryOnly {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	if hashBytes(data) == s.lastSavedHash {
		return false
	}
	var state slotState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.WithError(err).Warn("ignoring corrupt external slot rewrite")
		return false
	}
	s.state = state
	s.loaded = true
	s.lastSavedHash = hashBytes(data)
	return true
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).Warn("slot unreadable, starting empty")
		}
		return
	}
	var state slotState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.WithError(err).Warn("slot corrupt, starting empty")
		return
	}
	s.state = state
	s.lastSavedHash = hashBytes(data)
}

func (s *Store) eventsLocked() []habit.ActivityEvent {
	out := make([]habit.ActivityEvent, len(s.state.Events))
	copy(out, s.state.Events)
	return out
}

func (s *Store) resolveLocked(id string) string {
	for i := 0; i < len(s.state.Aliases); i++ {
		next, ok := s.state.Aliases[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}

// persistLocked commits the slot to disk. A write failure degrades the
// store to memory-only for the remainder of the session: availability
// wins, the failure is logged as a warning.
func (s *Store) persistLocked() {
	if s.memoryOnly {
		return
	}
	data, err := json.Marshal(s.state)
	if err != nil {
		s.logger.WithError(err).Warn("slot marshal failed, continuing in memory")
		s.memoryOnly = true
		return
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		s.logger.WithError(err).Warn("slot write failed, continuing in memory")
		s.memoryOnly = true
		return
	}
	s.lastSavedHash = hashBytes(data)
}

func replaceID(list []string, oldID, newID string) []string {
	for i, id := range list {
		if id == oldID {
			list[i] = newID
		}
	}
	return list
}

func removeID(list []string, id string) []string {
	kept := list[:0]
	for _, existing := range list {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return kept
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
