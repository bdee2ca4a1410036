package storage

import (
	"sync"

	"github.com/cuemby/agrilo/pkg/types"
)

// MemoryStore keeps client state in process memory.
// Used by tests and by embedders that do not need persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	token     string
	profile   *types.Profile
	language  string
	snapshots map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
	}
}

func (s *MemoryStore) GetToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) DeleteToken() error {
	return s.SetToken("")
}

func (s *MemoryStore) GetProfile() (*types.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *MemoryStore) SaveProfile(profile *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile == nil {
		s.profile = nil
		return nil
	}
	p := *profile
	s.profile = &p
	return nil
}

func (s *MemoryStore) DeleteProfile() error {
	return s.SaveProfile(nil)
}

func (s *MemoryStore) GetLanguage() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language, nil
}

func (s *MemoryStore) SetLanguage(lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
	return nil
}

func (s *MemoryStore) GetSnapshot(view string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.snapshots[view]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, data...), nil
}

func (s *MemoryStore) SaveSnapshot(view string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[view] = append([]byte{}, data...)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
