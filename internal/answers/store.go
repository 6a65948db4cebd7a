// Package answers holds the test-taker's answers, review marks, visited
// questions and per-question dwell time.
package answers

import (
	"sort"
	"sync"
	"time"
)

// Store is mutated only by test-taker actions. Values are overwritten, never removed.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	answers map[string]string
	marked  map[string]bool
	visited map[int]struct{}

	current    int
	currentQID string
	enteredAt  time.Time
	timeSpent  map[string]time.Duration
	frozen     bool
}

// NewStore creates an empty store. now is the time source for dwell tracking.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:       now,
		answers:   make(map[string]string),
		marked:    make(map[string]bool),
		visited:   make(map[int]struct{}),
		timeSpent: make(map[string]time.Duration),
		current:   -1,
	}
}

// SetAnswer records or overwrites the answer for a question.
func (s *Store) SetAnswer(questionID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	s.answers[questionID] = value
}

// ToggleMarkForReview flips the review flag and returns the new value.
func (s *Store) ToggleMarkForReview(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.marked[questionID]
	}
	if s.marked[questionID] {
		delete(s.marked, questionID)
		return false
	}
	s.marked[questionID] = true
	return true
}

// Visit navigates to the question at index. The dwell interval of the
// previous question is closed.
func (s *Store) Visit(index int, questionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen || index < 0 {
		return
	}
	now := s.now()
	s.closeIntervalLocked(now)
	s.visited[index] = struct{}{}
	s.current = index
	s.currentQID = questionID
	s.enteredAt = now
}

// Freeze closes the open dwell interval and rejects further mutation.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	s.closeIntervalLocked(s.now())
	s.frozen = true
}

func (s *Store) closeIntervalLocked(now time.Time) {
	if s.currentQID == "" {
		return
	}
	if d := now.Sub(s.enteredAt); d > 0 {
		s.timeSpent[s.currentQID] += d
	}
	s.enteredAt = now
}

// TimeSpent returns the accumulated dwell time, including the open interval.
func (s *Store) TimeSpent(questionID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.timeSpent[questionID]
	if !s.frozen && questionID == s.currentQID {
		if open := s.now().Sub(s.enteredAt); open > 0 {
			d += open
		}
	}
	return d
}

// CurrentIndex returns the index of the question on screen, -1 before the first visit.
func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Answers returns a copy of all answers.
func (s *Store) Answers() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Answer returns the stored value for one question.
func (s *Store) Answer(questionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// Visited returns the visited indexes in ascending order.
func (s *Store) Visited() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.visited))
	for i := range s.visited {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Marked returns the question IDs marked for review, sorted.
func (s *Store) Marked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.marked))
	for id := range s.marked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
