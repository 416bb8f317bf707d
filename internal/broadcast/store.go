package broadcast

import "sync"

// Store holds the broadcast collection in creation order. Only the Workflow
// mutates it; readers get copies.
type Store struct {
	mu     sync.RWMutex
	drafts []Draft
}

// NewStore creates an empty broadcast store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) add(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
}

// mutate applies fn to the draft with the given id while holding the write
// lock. fn returning an error leaves the draft untouched.
func (s *Store) mutate(id string, fn func(*Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.drafts {
		if s.drafts[i].ID == id {
			return fn(&s.drafts[i])
		}
	}
	return ErrNotFound
}

// remove deletes the draft with the given id if fn accepts it. Order of the
// remaining drafts is preserved.
func (s *Store) remove(id string, fn func(*Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.drafts {
		if s.drafts[i].ID == id {
			if err := fn(&s.drafts[i]); err != nil {
				return err
			}
			s.drafts = append(s.drafts[:i], s.drafts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Get returns a copy of the draft with the given id.
func (s *Store) Get(id string) (Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.drafts {
		if s.drafts[i].ID == id {
			return s.drafts[i], nil
		}
	}
	return Draft{}, ErrNotFound
}

// List returns drafts in creation order. An empty status returns the whole
// collection; otherwise only drafts currently in that status.
func (s *Store) List(status Status) []Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

// Len reports the number of drafts in the collection.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}
