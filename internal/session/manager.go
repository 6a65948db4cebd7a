// Package session owns the proctored exam lifecycle: the state machine, the
// ordered event loop and the exactly-once hand-off to the submission
// pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/answers"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/policy"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"github.com/stemsi/exstem-proctor/internal/timer"
)

// ReasonTimeLimit is the auto-submit reason on countdown expiry.
const ReasonTimeLimit = "Time limit reached"

// deliverTimeout bounds the hand-off to the results consumer.
const deliverTimeout = 5 * time.Second

// Session errors.
var (
	ErrFullscreenDenied  = errors.New("fullscreen permission denied")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrStartInProgress   = errors.New("session start already in progress")
)

// Notifier receives advisory messages for the test-taker. Implementations
// must not block.
type Notifier interface {
	Notify(n model.Notice)
}

// Capabilities is the host runtime's capability API.
type Capabilities interface {
	RequestFullscreen(ctx context.Context) error
}

// ResultsConsumer receives the single hand-off at completion.
type ResultsConsumer interface {
	Deliver(ctx context.Context, h *model.Handoff) error
}

// EventSink receives every recorded security event for live monitoring.
type EventSink interface {
	Emit(quizID string, sessionID uuid.UUID, ev model.SecurityEvent)
}

// Deps are the collaborators of a Manager. Only Pipeline is required.
type Deps struct {
	Clock        timer.Clock
	Notifier     Notifier
	Capabilities Capabilities
	Consumer     ResultsConsumer
	Sink         EventSink
	Pipeline     *submission.Pipeline
	Log          zerolog.Logger
}

// Manager drives one proctored session.
type Manager struct {
	id     uuid.UUID
	quiz   *model.Quiz
	policy config.Policy
	deps   Deps
	clock  timer.Clock
	log    zerolog.Logger

	state    atomic.Value // model.SessionState
	starting atomic.Bool

	queue   *Queue
	sched   *timer.Scheduler
	monitor *monitor.Monitor
	engine  *policy.Engine
	answers *answers.Store
	ledger  *submission.Ledger
	idle    *timer.IdleWatch

	// Loop-owned.
	warned         bool
	criticalWarned bool

	mu               sync.RWMutex
	timeRemaining    int
	counters         model.ViolationCounters
	isAutoSubmit     bool
	autoSubmitReason string
	startedAt        *time.Time
	report           *model.Report

	finished     chan struct{}
	finishedOnce sync.Once
}

// New creates a session in NOT_STARTED for quiz.
func New(id uuid.UUID, quiz *model.Quiz, p config.Policy, deps Deps) *Manager {
	clock := deps.Clock
	if clock == nil {
		clock = timer.SystemClock{}
	}
	if deps.Pipeline == nil {
		deps.Pipeline = submission.NewPipeline(nil, deps.Log)
	}

	log := deps.Log.With().
		Str("component", "session").
		Str("session_id", id.String()).
		Str("quiz_id", quiz.QuizID).
		Logger()

	m := &Manager{
		id:            id,
		quiz:          quiz,
		policy:        p,
		deps:          deps,
		clock:         clock,
		log:           log,
		sched:         timer.NewScheduler(clock),
		ledger:        submission.NewLedger(id),
		answers:       answers.NewStore(clock.Now),
		timeRemaining: quiz.DurationSeconds(),
		finished:      make(chan struct{}),
	}
	m.state.Store(model.SessionStateNotStarted)
	m.queue = NewQueue(m.dispatch)
	m.monitor = monitor.New(monitor.Options{
		CopyPasteDisabled:  p.CopyPasteDisabled,
		RightClickDisabled: p.RightClickDisabled,
		MaxIdle:            p.MaxIdle(),
	}, clock.Now)
	m.engine = policy.New(p, policy.Deps{
		Terminator: m,
		Notifier:   noticeFunc(m.notify),
		Recorder:   recordFunc(m.record),
		Timers:     graceTimers{m},
		Now:        clock.Now,
		Log:        m.log,
	})
	return m
}

// ID returns the session ID.
func (m *Manager) ID() uuid.UUID { return m.id }

// Quiz returns the quiz under examination.
func (m *Manager) Quiz() *model.Quiz { return m.quiz }

// Policy returns the effective proctoring policy.
func (m *Manager) Policy() config.Policy { return m.policy }

// State returns the current lifecycle state.
func (m *Manager) State() model.SessionState {
	return m.state.Load().(model.SessionState)
}

func (m *Manager) cas(from, to model.SessionState) bool {
	return m.state.CompareAndSwap(from, to)
}

// Finished is closed when the session reaches COMPLETED or ABORTED.
func (m *Manager) Finished() <-chan struct{} {
	return m.finished
}

// Run drives the event loop until the session ends or ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	m.queue.Run(ctx)
}

// Drain processes every pending event on the calling goroutine.
func (m *Manager) Drain() {
	m.queue.Drain()
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// ShowInstructions moves NOT_STARTED to INSTRUCTIONS_SHOWN and returns the
// quiz instructions. Showing them again before start is allowed.
func (m *Manager) ShowInstructions() ([]string, error) {
	if !m.cas(model.SessionStateNotStarted, model.SessionStateInstructionsShown) &&
		m.State() != model.SessionStateInstructionsShown {
		return nil, fmt.Errorf("%w: show instructions from %s", ErrInvalidTransition, m.State())
	}
	m.notifyState()
	return append([]string(nil), m.quiz.Instructions...), nil
}

// Start requests fullscreen when required and activates the session. A
// denial keeps the session in INSTRUCTIONS_SHOWN so the caller may retry.
func (m *Manager) Start(ctx context.Context) error {
	if m.State() != model.SessionStateInstructionsShown {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, m.State())
	}
	if !m.starting.CompareAndSwap(false, true) {
		return ErrStartInProgress
	}
	defer m.starting.Store(false)

	fullscreen := false
	if m.policy.FullscreenRequired {
		err := errors.New("no fullscreen capability")
		if m.deps.Capabilities != nil {
			err = m.deps.Capabilities.RequestFullscreen(ctx)
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("Fullscreen request denied")
			m.notify(model.Notice{
				Kind:    model.NoticeError,
				Message: "Fullscreen is required to start the exam. Please allow it and try again.",
				Data:    map[string]any{"code": "FULLSCREEN_DENIED", "retry": true},
			})
			return fmt.Errorf("%w: %v", ErrFullscreenDenied, err)
		}
		fullscreen = true
	}

	var started bool
	m.queue.turn.Lock()
	if m.cas(model.SessionStateInstructionsShown, model.SessionStateActive) {
		started = true
		m.activate(fullscreen)
	}
	m.queue.turn.Unlock()

	if !started {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, m.State())
	}
	m.notifyState()
	m.log.Info().Int("duration_seconds", m.quiz.DurationSeconds()).Bool("fullscreen", fullscreen).Msg("Session started")
	return nil
}

// activate runs under the turn lock right after the ACTIVE transition.
func (m *Manager) activate(fullscreen bool) {
	now := m.clock.Now()
	m.mu.Lock()
	m.startedAt = &now
	m.timeRemaining = m.quiz.DurationSeconds()
	m.mu.Unlock()

	m.monitor.Open(fullscreen)
	if len(m.quiz.Questions) > 0 {
		m.answers.Visit(0, m.quiz.Questions[0].ID)
	}

	m.sched.StartCountdown(m.quiz.DurationSeconds(),
		func(remaining int) { m.queue.Post(tickEvent{remaining: remaining}) },
		func() { m.queue.Post(expiredEvent{}) })
	m.idle = m.sched.StartIdleWatch(m.policy.MaxIdle(), func() { m.queue.Post(idleEvent{}) })
	m.sched.StartAudit(m.policy.AuditInterval(), func() { m.queue.Post(auditEvent{}) })
}

// Abort cancels a session that has not started. ABORTED is absorbing.
func (m *Manager) Abort(reason string) error {
	if !m.cas(model.SessionStateNotStarted, model.SessionStateAborted) &&
		!m.cas(model.SessionStateInstructionsShown, model.SessionStateAborted) {
		return fmt.Errorf("%w: abort from %s", ErrInvalidTransition, m.State())
	}
	m.sched.CancelAll()
	m.monitor.Close()
	m.queue.CloseWith(nil)
	m.finish()
	m.notifyState()
	m.log.Info().Str("reason", reason).Msg("Session aborted")
	return nil
}

// Submit queues the manual submission behind any input already posted.
// Repeated or late calls are no-ops.
func (m *Manager) Submit() {
	m.queue.Post(submitEvent{})
}

// RequestTermination auto-submits the session with reason. Only the first
// trigger wins; the rest are silently ignored.
func (m *Manager) RequestTermination(reason string) {
	m.beginSubmit(true, reason)
}

// beginSubmit is the single ACTIVE to SUBMITTING transition. The pipeline
// itself runs in the final turn of the event loop.
func (m *Manager) beginSubmit(auto bool, reason string) bool {
	if !m.cas(model.SessionStateActive, model.SessionStateSubmitting) {
		return false
	}

	m.mu.Lock()
	m.isAutoSubmit = auto
	m.autoSubmitReason = reason
	m.mu.Unlock()

	m.sched.CancelAll()
	m.monitor.Close()
	m.queue.CloseWith(finalizeEvent{})
	m.notifyState()

	m.log.Info().Bool("auto_submit", auto).Str("reason", reason).Msg("Session submitting")
	return true
}

func (m *Manager) finalize() {
	m.engine.Stop()
	m.answers.Freeze()
	m.syncCounters()

	m.mu.RLock()
	in := submission.Input{
		SessionID:        m.id,
		Quiz:             m.quiz,
		Answers:          m.answers.Answers(),
		TimeSpent:        m.timeSpent(),
		Visited:          m.answers.Visited(),
		Marked:           m.answers.Marked(),
		Counters:         m.counters,
		TimeRemaining:    m.timeRemaining,
		Ledger:           m.ledger,
		IsAutoSubmit:     m.isAutoSubmit,
		AutoSubmitReason: m.autoSubmitReason,
		SubmittedAt:      m.clock.Now(),
	}
	m.mu.RUnlock()

	handoff := m.deps.Pipeline.Run(in)

	m.mu.Lock()
	m.report = handoff.Report
	m.mu.Unlock()

	m.cas(model.SessionStateSubmitting, model.SessionStateCompleted)
	m.finish()
	m.notifyState()
	m.notify(model.Notice{
		Kind:    model.NoticeCompleted,
		Message: "Exam submitted",
		Data:    map[string]any{"report": handoff.Report},
	})

	if m.deps.Consumer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := m.deps.Consumer.Deliver(ctx, handoff); err != nil {
		m.log.Error().Err(err).Msg("Failed to deliver hand-off")
	}
}

func (m *Manager) finish() {
	m.finishedOnce.Do(func() { close(m.finished) })
}

func (m *Manager) timeSpent() map[string]time.Duration {
	out := make(map[string]time.Duration, len(m.quiz.Questions))
	for _, q := range m.quiz.Questions {
		out[q.ID] = m.answers.TimeSpent(q.ID)
	}
	return out
}

// ─── Test-taker input ───────────────────────────────────────────────────────

// Signal queues an environment signal. It reports false once the session
// stopped accepting input.
func (m *Manager) Signal(sig monitor.Signal) bool {
	return m.queue.Post(signalEvent{sig: sig})
}

// SetAnswer queues an answer.
func (m *Manager) SetAnswer(questionID, value string) bool {
	return m.queue.Post(answerEvent{questionID: questionID, value: value})
}

// ToggleMark queues a mark-for-review toggle.
func (m *Manager) ToggleMark(questionID string) bool {
	return m.queue.Post(markEvent{questionID: questionID})
}

// Visit queues navigation to the question at index.
func (m *Manager) Visit(index int) bool {
	return m.queue.Post(visitEvent{index: index})
}

// ─── Event loop ─────────────────────────────────────────────────────────────

func (m *Manager) dispatch(ev Event) {
	if _, ok := ev.(finalizeEvent); ok {
		m.finalize()
		return
	}
	if m.State() != model.SessionStateActive {
		return
	}

	switch e := ev.(type) {
	case signalEvent:
		m.handleDetection(m.monitor.Classify(e.sig))
	case idleEvent:
		m.handleDetection(m.monitor.IdleExpired())
	case tickEvent:
		m.onTick(e.remaining)
	case expiredEvent:
		m.beginSubmit(true, ReasonTimeLimit)
	case submitEvent:
		m.beginSubmit(false, "")
	case auditEvent:
		m.engine.Audit()
	case graceExpiredEvent:
		m.engine.GraceExpired(e.gen)
	case focusSettledEvent:
		m.handleDetection(m.monitor.SettleFocusLoss(e.gen))
	case answerEvent:
		if m.quiz.QuestionIndex(e.questionID) < 0 {
			m.notifyUnknownQuestion(e.questionID)
			return
		}
		m.answers.SetAnswer(e.questionID, e.value)
	case markEvent:
		if m.quiz.QuestionIndex(e.questionID) < 0 {
			m.notifyUnknownQuestion(e.questionID)
			return
		}
		m.answers.ToggleMarkForReview(e.questionID)
	case visitEvent:
		if e.index < 0 || e.index >= len(m.quiz.Questions) {
			m.notify(model.Notice{
				Kind:    model.NoticeError,
				Message: fmt.Sprintf("Question index %d out of range", e.index),
			})
			return
		}
		m.answers.Visit(e.index, m.quiz.Questions[e.index].ID)
	default:
		m.log.Warn().Str("event", ev.eventName()).Msg("Unhandled session event")
	}
	m.syncCounters()
}

func (m *Manager) handleDetection(d monitor.Detection) {
	if d.Activity && m.idle != nil {
		m.idle.Reset()
	}
	if d.FullscreenRestored {
		m.engine.FullscreenRestored()
	}
	if gen := d.PendingFocusLoss; gen != 0 {
		m.sched.After(monitor.FocusLossSettle, func() { m.queue.Post(focusSettledEvent{gen: gen}) })
	}
	if d.Event == nil {
		return
	}
	if d.Suppress {
		m.notify(model.Notice{
			Kind:    model.NoticeSuppressed,
			Message: d.Event.Description,
			Data:    map[string]any{"type": d.Event.Type},
		})
	}
	m.record(d.Event)
	m.engine.Handle(d.Event)
}

func (m *Manager) record(ev *model.SecurityEvent) {
	if err := m.ledger.Append(ev); err != nil {
		m.log.Error().Err(err).Msg("Failed to record security event")
		return
	}
	m.log.Info().
		Str("type", string(ev.Type)).
		Str("severity", string(ev.Severity)).
		Int("sequence", ev.Sequence).
		Msg(ev.Description)
	if m.deps.Sink != nil {
		m.deps.Sink.Emit(m.quiz.QuizID, m.id, *ev)
	}
}

func (m *Manager) onTick(remaining int) {
	m.engine.Tick(m.monitor.Focused())

	m.mu.Lock()
	if remaining < m.timeRemaining {
		m.timeRemaining = remaining
	}
	left := m.timeRemaining
	m.mu.Unlock()

	m.notify(model.Notice{
		Kind: model.NoticeTick,
		Data: map[string]any{"time_remaining": left},
	})

	switch {
	case !m.criticalWarned && left <= m.policy.CriticalTimeWarningAtSeconds:
		m.criticalWarned = true
		m.warned = true
		m.notify(model.Notice{
			Kind:    model.NoticeCriticalTimeWarning,
			Message: fmt.Sprintf("Only %d seconds remaining", left),
			Data:    map[string]any{"time_remaining": left},
		})
	case !m.warned && left <= m.policy.TimeWarningAtSeconds:
		m.warned = true
		m.notify(model.Notice{
			Kind:    model.NoticeTimeWarning,
			Message: fmt.Sprintf("%d minutes remaining", (left+59)/60),
			Data:    map[string]any{"time_remaining": left},
		})
	}
}

func (m *Manager) syncCounters() {
	c := m.engine.Counters()
	m.mu.Lock()
	m.counters = c
	m.mu.Unlock()
}

func (m *Manager) notifyUnknownQuestion(id string) {
	m.notify(model.Notice{
		Kind:    model.NoticeError,
		Message: fmt.Sprintf("Unknown question %q", id),
	})
}

func (m *Manager) notifyState() {
	m.notify(model.Notice{
		Kind: model.NoticeState,
		Data: map[string]any{"state": m.State()},
	})
}

func (m *Manager) notify(n model.Notice) {
	if m.deps.Notifier == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = m.clock.Now()
	}
	m.deps.Notifier.Notify(n)
}

// ─── Read side ──────────────────────────────────────────────────────────────

// Snapshot returns a copy of the session aggregate.
func (m *Manager) Snapshot() model.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := model.SessionSnapshot{
		ID:                   m.id,
		QuizID:               m.quiz.QuizID,
		State:                m.State(),
		TimeRemaining:        m.timeRemaining,
		CurrentQuestionIndex: m.answers.CurrentIndex(),
		VisitedQuestions:     m.answers.Visited(),
		MarkedForReview:      m.answers.Marked(),
		Answers:              m.answers.Answers(),
		Counters:             m.counters,
		SecurityEvents:       m.ledger.Events(),
		AutoSubmitReason:     m.autoSubmitReason,
	}
	if m.startedAt != nil {
		t := *m.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// Report returns the completed report, if any.
func (m *Manager) Report() (*model.Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report, m.report != nil
}

// ─── Policy engine adapters ─────────────────────────────────────────────────

type noticeFunc func(model.Notice)

func (f noticeFunc) Notify(n model.Notice) { f(n) }

type recordFunc func(*model.SecurityEvent)

func (f recordFunc) Record(ev *model.SecurityEvent) { f(ev) }

// graceTimers routes the fullscreen grace expiry back through the queue.
type graceTimers struct{ m *Manager }

func (g graceTimers) StartGrace(d time.Duration, gen uint64) policy.Cancelable {
	return g.m.sched.After(d, func() { g.m.queue.Post(graceExpiredEvent{gen: gen}) })
}
