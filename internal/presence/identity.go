// Package presence contains both sides of the online gauge: the device-side Tracker that
// keeps a session alive with periodic heartbeats, and the Monitor that turns stored
// heartbeats into a live count for admin views.
package presence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IdentityStore hands out the stable session id of this device.
type IdentityStore interface {
	SessionID() (string, error)
}

// FileIdentityStore keeps the session id in a small file so it survives restarts.
type FileIdentityStore struct {
	path string

	mu     sync.Mutex
	cached string
}

// NewFileIdentityStore returns a store backed by path.
func NewFileIdentityStore(path string) *FileIdentityStore {
	return &FileIdentityStore{path: path}
}

// SessionID returns the stored id, generating and persisting one on first use.
func (s *FileIdentityStore) SessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			s.cached = id
			return id, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read session id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("prepare session id dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write session id: %w", err)
	}
	s.cached = id
	return id, nil
}
