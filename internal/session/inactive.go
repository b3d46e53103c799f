package session

import "sync"

// InactiveSet tracks revision ids discovered stale while cached client
// side. It is read and written concurrently by the maintainer and by
// serving sessions.
type InactiveSet struct {
	mu  sync.Mutex
	ids map[uint64]struct{}
}

// NewInactiveSet creates an empty set.
func NewInactiveSet() *InactiveSet {
	return &InactiveSet{ids: make(map[uint64]struct{})}
}

// Add records a stale revision. It returns false when the revision was
// already recorded, so callers can keep side effects to one per occurrence.
func (s *InactiveSet) Add(revisionID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[revisionID]; ok {
		return false
	}
	s.ids[revisionID] = struct{}{}
	return true
}

// Active reports whether a revision is still serveable: absence means
// active. With discard, a stale entry is consumed on read to bound memory.
func (s *InactiveSet) Active(revisionID uint64, discard bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[revisionID]; !ok {
		return true
	}
	if discard {
		delete(s.ids, revisionID)
	}
	return false
}

// Len returns the number of recorded stale revisions.
func (s *InactiveSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
