package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// MemoryStore keeps listings as encoded JSON documents in memory. It backs
// tests and dry runs; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	listings    map[string][]byte
	identifiers map[models.Source]map[string]string
	checkpoints map[models.SyncType]models.SyncCheckpoint
	writes      int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:    make(map[string][]byte),
		identifiers: make(map[models.Source]map[string]string),
		checkpoints: make(map[models.SyncType]models.SyncCheckpoint),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetListing(ctx context.Context, id string) (*models.CanonicalListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decode(id)
}

func (s *MemoryStore) GetListingByIdentifier(ctx context.Context, source models.Source, nativeID string) (*models.CanonicalListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identifiers[source][nativeID]
	if !ok {
		return nil, nil
	}
	return s.decode(id)
}

func (s *MemoryStore) GetListingsByAddressKey(ctx context.Context, addressKey string) ([]models.CanonicalListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id := range s.listings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.CanonicalListing
	for _, id := range ids {
		l, err := s.decode(id)
		if err != nil {
			return nil, err
		}
		if l.AddressKey == addressKey {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertListing(ctx context.Context, l *models.CanonicalListing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = data
	for src, nativeID := range l.SourceIDs {
		if s.identifiers[src] == nil {
			s.identifiers[src] = make(map[string]string)
		}
		if _, ok := s.identifiers[src][nativeID]; !ok {
			s.identifiers[src][nativeID] = l.ID
		}
	}
	s.writes++
	return nil
}

func (s *MemoryStore) GetCheckpoint(ctx context.Context, syncType models.SyncType) (*models.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[syncType]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.SyncType] = *cp
	return nil
}

// Snapshot returns a copy of every stored document keyed by listing id.
func (s *MemoryStore) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.listings))
	for id, data := range s.listings {
		out[id] = append([]byte(nil), data...)
	}
	return out
}

// Writes returns the number of listing upserts performed.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *MemoryStore) decode(id string) (*models.CanonicalListing, error) {
	data, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	var l models.CanonicalListing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
