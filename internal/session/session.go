// Package session is the boundary to the identity overlay. The core only
// consumes a credential provider; issuing and verifying credentials
// happens elsewhere.
package session

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// Provider supplies the bearer credential under which events are scoped.
// Token returns the empty string when no session is active.
type Provider interface {
	Token() string
}

// Notifier is implemented by providers that can report session changes.
type Notifier interface {
	OnChange(func())
}

// Static holds a fixed token for the lifetime of the process.
type Static struct {
	token string
}

func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

func (s *Static) Token() string {
	if s == nil {
		return ""
	}
	return s.token
}

// FileProvider reads the credential from a token file so separate
// invocations of the client share one session. Reload picks up external
// logins and logouts.
type FileProvider struct {
	path string

	mu        sync.Mutex
	token     string
	loaded    bool
	callbacks []func()
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: strings.TrimSpace(path)}
}

func (p *FileProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.token = p.readToken()
		p.loaded = true
	}
	return p.token
}

// Store persists a new credential and notifies listeners. An empty token
// ends the session and removes the file.
func (p *FileProvider) Store(token string) error {
	token = strings.TrimSpace(token)
	p.mu.Lock()
	p.token = token
	p.loaded = true
	callbacks := append([]func(){}, p.callbacks...)
	p.mu.Unlock()

	var err error
	if token == "" {
		err = os.Remove(p.path)
		if err != nil && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	} else {
		err = os.WriteFile(p.path, []byte(token+"\n"), 0o600)
	}
	for _, callback := range callbacks {
		callback()
	}
	return err
}

// Reload re-reads the token file, notifying listeners when the credential
// changed underneath us.
func (p *FileProvider) Reload() {
	p.mu.Lock()
	previous := p.token
	p.token = p.readToken()
	p.loaded = true
	changed := p.token != previous
	callbacks := append([]func(){}, p.callbacks...)
	p.mu.Unlock()

	if !changed {
		return
	}
	for _, callback := range callbacks {
		callback()
	}
}

func (p *FileProvider) OnChange(callback func()) {
	if callback == nil {
		return
	}
	p.mu.Lock()
	p.callbacks = append(p.callbacks, callback)
	p.mu.Unlock()
}

func (p *FileProvider) readToken() string {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
