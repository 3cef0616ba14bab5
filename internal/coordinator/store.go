package coordinator

import (
	"slices"
	"sync"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// Store holds the last successful snapshot of every device.
//
// Readers get copies. Only the Coordinator writes.
type Store struct {
	mu   sync.RWMutex
	data map[string]homeserver.Snapshot
}

func newStore() *Store {
	return &Store{data: make(map[string]homeserver.Snapshot)}
}

// Get returns the snapshot of deviceID, if one has been stored.
func (s *Store) Get(deviceID string) (homeserver.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[deviceID]
	if !ok {
		return homeserver.Snapshot{}, false
	}
	return snap.Clone(), true
}

// Field returns one value of one device. ok is false when the device has
// no snapshot or the snapshot lacks the field.
func (s *Store) Field(deviceID, field string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[deviceID]
	if !ok {
		return nil, false
	}
	return snap.Field(field)
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() map[string]homeserver.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]homeserver.Snapshot, len(s.data))
	for id, snap := range s.data {
		out[id] = snap.Clone()
	}
	return out
}

// Len returns the number of devices with a stored snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) put(deviceID string, snap homeserver.Snapshot) {
	s.mu.Lock()
	s.data[deviceID] = snap.Clone()
	s.mu.Unlock()
}

// prune drops every entry whose device is not in keep.
func (s *Store) prune(keep []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id := range s.data {
		if !slices.Contains(keep, id) {
			delete(s.data, id)
			removed = append(removed, id)
		}
	}
	return removed
}
