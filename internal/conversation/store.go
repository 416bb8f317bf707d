package conversation

import "sync"

// Store holds the ordered turn history for one session. It is append-only:
// the pipeline is the only writer, and readers get copies, never references
// into the backing slice.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// List returns the most recent turns in creation order. A limit <= 0
// returns the full history.
func (s *Store) List(limit int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.turns) > limit {
		start = len(s.turns) - limit
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// Len reports the number of stored turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
