package trigger

import "sync"

// seenSet remembers the most recent clock hashes merged by a pipeline.
// When full, the oldest hash is forgotten first.
type seenSet struct {
	mu    sync.Mutex
	max   int
	order []string
	next  int
	index map[string]struct{}
}

func newSeenSet(max int) *seenSet {
	if max < 1 {
		max = 1
	}
	return &seenSet{
		max:   max,
		order: make([]string, 0, max),
		index: make(map[string]struct{}, max),
	}
}

// Add records hash and reports whether it was new.
func (s *seenSet) Add(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[hash]; ok {
		return false
	}

	if len(s.order) < s.max {
		s.order = append(s.order, hash)
	} else {
		delete(s.index, s.order[s.next])
		s.order[s.next] = hash
		s.next = (s.next + 1) % s.max
	}
	s.index[hash] = struct{}{}
	return true
}

// Contains reports whether hash is remembered.
func (s *seenSet) Contains(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[hash]
	return ok
}

// Len returns the number of remembered hashes.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
