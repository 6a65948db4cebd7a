package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// MemoryStore is an in-process Store, used by the replay tool and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	quizzes map[string]*model.Quiz
}

// NewMemoryStore creates a store holding quizzes.
func NewMemoryStore(quizzes ...*model.Quiz) *MemoryStore {
	s := &MemoryStore{quizzes: make(map[string]*model.Quiz, len(quizzes))}
	for _, q := range quizzes {
		s.Put(q)
	}
	return s
}

// Put adds or replaces a quiz.
func (s *MemoryStore) Put(q *model.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[q.QuizID] = q
}

func (s *MemoryStore) GetQuiz(_ context.Context, quizID string) (*model.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, ErrQuizNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *MemoryStore) ListQuizIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.quizzes))
	for id := range s.quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
