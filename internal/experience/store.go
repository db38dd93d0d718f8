package experience

import (
	"sync"

	"quotrading/internal/regime"
)

// Store is the in-memory experience collection. It is append-only within a
// trading session: records are added as trades close and never edited or
// removed. Readers always work on snapshot copies, so a similarity scan is
// never invalidated by a concurrent append.
type Store struct {
	mu          sync.RWMutex
	experiences []Experience
}

// NewStore creates an empty experience store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a record to the store.
func (s *Store) Append(e Experience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiences = append(s.experiences, e)
}

// Replace swaps the whole collection, used for bulk loads at startup and for
// refreshes of a shared remote store.
func (s *Store) Replace(experiences []Experience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiences = experiences
}

// All returns a snapshot copy of every record.
func (s *Store) All() []Experience {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Experience, len(s.experiences))
	copy(snapshot, s.experiences)
	return snapshot
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.experiences)
}

// Winners returns the records with positive reward. The partition is a view
// computed per call, not separate storage.
func (s *Store) Winners() []Experience {
	return s.filter(func(e Experience) bool { return e.Reward > 0 })
}

// Losers returns the records with negative reward.
func (s *Store) Losers() []Experience {
	return s.filter(func(e Experience) bool { return e.Reward < 0 })
}

func (s *Store) filter(keep func(Experience) bool) []Experience {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Experience
	for _, e := range s.experiences {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ExitStore is the in-memory exit-experience collection with (symbol, regime)
// grouped access for parameter learning.
type ExitStore struct {
	mu      sync.RWMutex
	records []ExitExperience
}

// NewExitStore creates an empty exit-experience store.
func NewExitStore() *ExitStore {
	return &ExitStore{}
}

// Append adds an exit record.
func (s *ExitStore) Append(e ExitExperience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, e)
}

// Replace swaps the whole collection for bulk loads.
func (s *ExitStore) Replace(records []ExitExperience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// All returns a snapshot copy of every exit record.
func (s *ExitStore) All() []ExitExperience {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]ExitExperience, len(s.records))
	copy(snapshot, s.records)
	return snapshot
}

// Len returns the number of stored exit records.
func (s *ExitStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ForGroup returns the exit records for one (symbol, regime) pair.
func (s *ExitStore) ForGroup(symbol string, r regime.Regime) []ExitExperience {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ExitExperience
	for _, rec := range s.records {
		if rec.Symbol == symbol && rec.Regime == r {
			out = append(out, rec)
		}
	}
	return out
}
