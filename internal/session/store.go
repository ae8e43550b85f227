package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/timada-org/todobase/pkg/backend"
)

// Store keeps the session between runs. Load returns nil, nil when nothing
// is stored.
type Store interface {
	Load() (*backend.Session, error)
	Save(session *backend.Session) error
	Delete() error
}

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*backend.Session, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var session backend.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	return &session, nil
}

func (s *FileStore) Save(session *backend.Session) error {
	// tokens are secrets: owner-only directory and file
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	b, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}

type MemoryStore struct {
	mux     sync.Mutex
	session *backend.Session
}

func NewMemoryStore(session *backend.Session) *MemoryStore {
	return &MemoryStore{session: copySession(session)}
}

func (s *MemoryStore) Load() (*backend.Session, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	return copySession(s.session), nil
}

func (s *MemoryStore) Save(session *backend.Session) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.session = copySession(session)
	return nil
}

func (s *MemoryStore) Delete() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.session = nil
	return nil
}

func copySession(session *backend.Session) *backend.Session {
	if session == nil {
		return nil
	}

	c := *session
	if session.User != nil {
		user := *session.User
		c.User = &user
	}

	return &c
}
