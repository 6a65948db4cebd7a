package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/catalog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"github.com/stemsi/exstem-proctor/internal/timer"
)

// Proctor service errors.
var (
	ErrQuizNotFound    = catalog.ErrQuizNotFound
	ErrSessionNotFound = errors.New("session not found")
	ErrNotCompleted    = errors.New("session not completed")
)

// ReasonAbandoned aborts sessions that were never started.
const ReasonAbandoned = "Session abandoned before start"

// QuizResolver turns a quiz ID into a quiz definition.
type QuizResolver interface {
	Resolve(ctx context.Context, quizID string) (*model.Quiz, error)
}

// ReportStore serves reports of evicted sessions.
type ReportStore interface {
	LoadReport(ctx context.Context, sessionID uuid.UUID) (*model.Report, error)
}

// MonitorSink receives security events and lifecycle announcements.
type MonitorSink interface {
	session.EventSink
	Announce(msg model.MonitorMessage)
}

// ProctorDeps wires the service. Only Catalog is required.
type ProctorDeps struct {
	Catalog   QuizResolver
	Consumer  session.ResultsConsumer
	Reports   ReportStore
	Sink      MonitorSink
	Signer    *submission.Signer
	Clock     timer.Clock
	Policy    config.Policy
	Retention time.Duration
	Log       zerolog.Logger
}

type entry struct {
	m          *session.Manager
	hub        *Hub
	cancel     context.CancelFunc
	createdAt  time.Time
	finishedAt time.Time
}

// ProctorService is the registry of live sessions.
type ProctorService struct {
	deps     ProctorDeps
	clock    timer.Clock
	pipeline *submission.Pipeline
	log      zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
}

// NewProctorService creates the registry.
func NewProctorService(deps ProctorDeps) *ProctorService {
	clock := deps.Clock
	if clock == nil {
		clock = timer.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProctorService{
		deps:       deps,
		clock:      clock,
		pipeline:   submission.NewPipeline(deps.Signer, deps.Log),
		log:        deps.Log.With().Str("component", "proctor_service").Logger(),
		baseCtx:    ctx,
		baseCancel: cancel,
		sessions:   make(map[uuid.UUID]*entry),
	}
}

// Policy returns the effective proctoring policy.
func (s *ProctorService) Policy() config.Policy {
	return s.deps.Policy
}

// Create resolves the quiz and opens a session showing its instructions.
// An unknown quiz creates nothing.
func (s *ProctorService) Create(ctx context.Context, quizID string) (*session.Manager, []string, error) {
	quiz, err := s.deps.Catalog.Resolve(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.New()
	hub := NewHub(s.clock.Now)
	deps := session.Deps{
		Clock:        s.clock,
		Notifier:     hub,
		Capabilities: hub,
		Consumer:     s.deps.Consumer,
		Pipeline:     s.pipeline,
		Log:          s.deps.Log,
	}
	if s.deps.Sink != nil {
		deps.Sink = s.deps.Sink
	}

	m := session.New(id, quiz, s.deps.Policy, deps)
	instructions, err := m.ShowInstructions()
	if err != nil {
		return nil, nil, fmt.Errorf("show instructions: %w", err)
	}

	loopCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.sessions[id] = &entry{m: m, hub: hub, cancel: cancel, createdAt: s.clock.Now()}
	total := len(s.sessions)
	s.mu.Unlock()

	go m.Run(loopCtx)

	s.log.Info().
		Str("session_id", id.String()).
		Str("quiz_id", quiz.QuizID).
		Int("live_sessions", total).
		Msg("Session created")
	return m, instructions, nil
}

func (s *ProctorService) lookup(id uuid.UUID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Get returns a live session.
func (s *ProctorService) Get(id uuid.UUID) (*session.Manager, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.m, nil
}

// Hub returns the client hub of a live session.
func (s *ProctorService) Hub(id uuid.UUID) (*Hub, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.hub, nil
}

// Start activates a session and announces it on the monitor feed.
func (s *ProctorService) Start(ctx context.Context, id uuid.UUID) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := e.m.Start(ctx); err != nil {
		return err
	}
	s.announce(e.m, model.MonitorSessionStarted)
	return nil
}

// Abort cancels a session before it starts.
func (s *ProctorService) Abort(id uuid.UUID, reason string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := e.m.Abort(reason); err != nil {
		return err
	}
	s.announce(e.m, model.MonitorSessionAborted)
	return nil
}

func (s *ProctorService) announce(m *session.Manager, typ model.MonitorMessageType) {
	if s.deps.Sink == nil {
		return
	}
	s.deps.Sink.Announce(model.MonitorMessage{
		Type:      typ,
		QuizID:    m.Quiz().QuizID,
		SessionID: m.ID(),
		Timestamp: s.clock.Now(),
	})
}

// Report returns the completed report of a live or recently evicted session.
func (s *ProctorService) Report(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	e, err := s.lookup(id)
	if err == nil {
		if r, ok := e.m.Report(); ok {
			return r, nil
		}
		return nil, ErrNotCompleted
	}

	if s.deps.Reports == nil {
		return nil, ErrSessionNotFound
	}
	r, err := s.deps.Reports.LoadReport(ctx, id)
	if err != nil {
		s.log.Debug().Err(err).Str("session_id", id.String()).Msg("Stored report lookup failed")
		return nil, ErrSessionNotFound
	}
	return r, nil
}

// Len returns the number of registered sessions.
func (s *ProctorService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep aborts sessions left unstarted past the retention window and evicts
// finished sessions once they have been retained long enough.
func (s *ProctorService) Sweep() {
	now := s.clock.Now()
	retention := s.deps.Retention

	var abandoned, evicted []*entry
	s.mu.Lock()
	for id, e := range s.sessions {
		select {
		case <-e.m.Finished():
			if e.finishedAt.IsZero() {
				e.finishedAt = now
			}
			if now.Sub(e.finishedAt) >= retention {
				delete(s.sessions, id)
				evicted = append(evicted, e)
			}
		default:
			state := e.m.State()
			if (state == model.SessionStateNotStarted || state == model.SessionStateInstructionsShown) &&
				now.Sub(e.createdAt) >= retention {
				abandoned = append(abandoned, e)
			}
		}
	}
	s.mu.Unlock()

	for _, e := range abandoned {
		if err := e.m.Abort(ReasonAbandoned); err == nil {
			s.announce(e.m, model.MonitorSessionAborted)
		}
	}
	for _, e := range evicted {
		e.cancel()
	}

	if len(abandoned)+len(evicted) > 0 {
		s.log.Info().
			Int("abandoned", len(abandoned)).
			Int("evicted", len(evicted)).
			Int("live_sessions", s.Len()).
			Msg("Session sweep")
	}
}

// RunJanitor sweeps on every interval until ctx is canceled.
func (s *ProctorService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Shutdown stops every session loop. Sessions still in progress are dropped.
func (s *ProctorService) Shutdown() {
	s.baseCancel()
	s.mu.Lock()
	n := len(s.sessions)
	s.sessions = make(map[uuid.UUID]*entry)
	s.mu.Unlock()
	s.log.Info().Int("sessions", n).Msg("Proctor service stopped")
}
