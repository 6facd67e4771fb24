package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	shared "github.com/charadev96/wtclient/internal/shared/domain"
)

type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string]map[string][]byte
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: map[string]map[string][]byte{}}
}

func (s *MemoryKVStore) Read(_ context.Context, primaryNS, secondaryNS, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.entries[namespace(primaryNS, secondaryNS)][key]
	if !ok {
		return nil, fmt.Errorf("failed to read '%s': %w", key, shared.ErrNotExist)
	}
	return append([]byte(nil), buf...), nil
}

func (s *MemoryKVStore) Write(_ context.Context, primaryNS, secondaryNS, key string, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := namespace(primaryNS, secondaryNS)
	if _, ok := s.entries[ns]; !ok {
		s.entries[ns] = map[string][]byte{}
	}
	s.entries[ns][key] = append([]byte(nil), buf...)
	return nil
}

func (s *MemoryKVStore) WriteIfAbsent(_ context.Context, primaryNS, secondaryNS, key string, buf []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := namespace(primaryNS, secondaryNS)
	if _, ok := s.entries[ns][key]; ok {
		return false, nil
	}
	if _, ok := s.entries[ns]; !ok {
		s.entries[ns] = map[string][]byte{}
	}
	s.entries[ns][key] = append([]byte(nil), buf...)
	return true, nil
}

func (s *MemoryKVStore) Remove(_ context.Context, primaryNS, secondaryNS, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[namespace(primaryNS, secondaryNS)], key)
	return nil
}

func (s *MemoryKVStore) List(_ context.Context, primaryNS, secondaryNS string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries[namespace(primaryNS, secondaryNS)]))
	for key := range s.entries[namespace(primaryNS, secondaryNS)] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func namespace(primaryNS, secondaryNS string) string {
	return primaryNS + "/" + secondaryNS
}
