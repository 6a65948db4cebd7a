package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrQuizNotFound is returned when a quiz ID does not resolve.
var ErrQuizNotFound = errors.New("quiz not found")

// Store is the quiz source of truth.
type Store interface {
	GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error)
	ListQuizIDs(ctx context.Context) ([]string, error)
}

// PayloadCache is the hot copy in front of the Store.
type PayloadCache interface {
	Get(ctx context.Context, quizID string) (*model.Quiz, error)
	Set(ctx context.Context, q *model.Quiz) error
}

// Service resolves quizzes: cache first, then the store, warming the cache.
type Service struct {
	store Store
	cache PayloadCache
	log   zerolog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(store Store, cache PayloadCache, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		cache: cache,
		log:   log.With().Str("component", "catalog").Logger(),
	}
}

// Resolve returns a validated quiz or ErrQuizNotFound.
func (s *Service) Resolve(ctx context.Context, quizID string) (*model.Quiz, error) {
	if s.cache != nil {
		q, err := s.cache.Get(ctx, quizID)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Cache read failed, falling back to store")
		}
	}

	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrQuizNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	Normalize(q)
	if err := Validate(q); err != nil {
		return nil, fmt.Errorf("quiz %s: %w", quizID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, q); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Failed to warm quiz cache")
		}
	}
	return q, nil
}

// Prewarm loads every quiz into the cache at startup.
func (s *Service) Prewarm(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	ids, err := s.store.ListQuizIDs(ctx)
	if err != nil {
		return fmt.Errorf("list quizzes: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No quizzes to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		q, err := s.store.GetQuiz(ctx, id)
		if err == nil {
			Normalize(q)
			err = Validate(q)
		}
		if err == nil {
			err = s.cache.Set(ctx, q)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("quiz_id", id).Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}
