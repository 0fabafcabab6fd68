package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State is the persisted identity pair. Nothing else is stored locally.
type State struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrNotFound = errors.New("session state not found")

// Store persists the identity pair across process restarts.
type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// FileStore keeps the pair in a small JSON file next to the kiosk binary.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("read session state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt state file is treated as absent so the provider can mint
		// a fresh identity instead of wedging the kiosk.
		return State{}, ErrNotFound
	}
	if st.ID == "" {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (s *FileStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session state dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit session state: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

// MemStore is the in-process fallback used when local storage is unavailable
// and in tests.
type MemStore struct {
	mu    sync.Mutex
	state State
	set   bool
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return State{}, ErrNotFound
	}
	return s.state, nil
}

func (s *MemStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.set = true
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	s.set = false
	return nil
}
