// Package server holds the authoritative activity store behind habitd.
// State lives in memory and is snapshotted through a pluggable backend
// after every mutation.
package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUserExists   = errors.New("username already exists")
	ErrInvalidInput = errors.New("invalid input")
)

type userState struct {
	PasswordHash string                `json:"passwordHash"`
	CreatedAt    string                `json:"createdAt,omitempty"`
	Activities   []habit.ActivityEvent `json:"activities"`
}

type persistedState struct {
	Users map[string]*userState `json:"users"`
}

type StoreOptions struct {
	Backend StateBackend
	Logger  logrus.FieldLogger
	NewID   func() string
	Now     func() time.Time
}

type Store struct {
	mu      sync.RWMutex
	users   map[string]*userState
	backend StateBackend
	logger  logrus.FieldLogger
	newID   func() string
	now     func() time.Time
}

func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		users:   map[string]*userState{},
		backend: opts.Backend,
		logger:  logger,
		newID:   newID,
		now:     now,
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	if s.backend == nil {
		return
	}
	snapshot, err := s.backend.Load()
	if err != nil {
		s.logger.WithError(err).Warn("state backend load failed, starting empty")
		return
	}
	if snapshot == nil || snapshot.Users == nil {
		return
	}
	s.users = snapshot.Users
}

// CreateUser registers a username with an already-hashed password.
func (s *Store) CreateUser(username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = &userState{
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	s.persistLocked()
	return nil
}

// Credentials returns the stored password hash for a username.
func (s *Store) Credentials(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return "", false
	}
	return user.PasswordHash, true
}

// Activities returns the user's full event set.
func (s *Store) Activities(username string) []habit.ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil
	}
	out := make([]habit.ActivityEvent, len(user.Activities))
	copy(out, user.Activities)
	return out
}

// CreateActivity appends a new event. The server assigns the durable
// identifier and the creation instant, overriding whatever the client
// proposed.
func (s *Store) CreateActivity(username string, event habit.ActivityEvent) habit.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.ensureUserLocked(username)
	event.ID = s.newID()
	event.Timestamp = s.now().UTC().Format(time.RFC3339)
	user.Activities = append(user.Activities, event)
	s.persistLocked()
	return event
}

// UpdateActivity replaces an event's fields in place. Identity and the
// original creation instant are preserved.
func (s *Store) UpdateActivity(username, id string, event habit.ActivityEvent) (habit.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return habit.ActivityEvent{}, ErrNotFound
	}
	for i := range user.Activities {
		if user.Activities[i].ID != id {
			continue
		}
		event.ID = id
		event.Timestamp = user.Activities[i].Timestamp
		user.Activities[i] = event
		s.persistLocked()
		return event, nil
	}
	return habit.ActivityEvent{}, ErrNotFound
}

// DeleteActivity removes an event outright.
func (s *Store) DeleteActivity(username, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	for i := range user.Activities {
		if user.Activities[i].ID != id {
			continue
		}
		user.Activities = append(user.Activities[:i], user.Activities[i+1:]...)
		s.persistLocked()
		return nil
	}
	return ErrNotFound
}

func (s *Store) Close() error {
	if closer, ok := s.backend.(stateBackendCloser); ok {
		return closer.Close()
	}
	return nil
}

func (s *Store) ensureUserLocked(username string) *userState {
	user, ok := s.users[username]
	if !ok {
		user = &userState{}
		s.users[username] = user
	}
	return user
}

func (s *Store) persistLocked() {
	if s.backend == nil {
		return
	}
	snapshot := persistedState{Users: s.users}
	if err := s.backend.Save(&snapshot); err != nil {
		s.logger.WithError(err).Warn("state snapshot failed")
	}
}
