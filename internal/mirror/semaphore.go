package mirror

import "sync"

// outstandingSyncs bounds the number of offset-sync producer sends in
// flight at once. Tokens are released by a producer ack (or right away
// when a send could not be enqueued), never reclaimed on a schedule: a
// sync dropped for lack of a permit is acceptable, since the next
// qualifying PartitionState.Update re-fires.
type outstandingSyncs struct {
	mu     sync.Mutex
	tokens int64
	cap    int64
}

func newOutstandingSyncs(capacity int64) *outstandingSyncs {
	return &outstandingSyncs{tokens: capacity, cap: capacity}
}

// TryAcquire takes one permit if available, non-blocking.
func (s *outstandingSyncs) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens <= 0 {
		return false
	}
	s.tokens--
	return true
}

// Release returns one permit.
func (s *outstandingSyncs) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens < s.cap {
		s.tokens++
	}
}

// Outstanding reports the number of permits currently checked out, for
// metrics and tests.
func (s *outstandingSyncs) Outstanding() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap - s.tokens
}
