package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"github.com/stemsi/exstem-proctor/internal/timer"
)

type notices struct {
	mu   sync.Mutex
	list []model.Notice
}

func (n *notices) Notify(x model.Notice) {
	n.mu.Lock()
	n.list = append(n.list, x)
	n.mu.Unlock()
}

func (n *notices) count(kind model.NoticeKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.list {
		if x.Kind == kind {
			c++
		}
	}
	return c
}

func (n *notices) states() []model.SessionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.SessionState
	for _, x := range n.list {
		if x.Kind == model.NoticeState {
			out = append(out, x.Data["state"].(model.SessionState))
		}
	}
	return out
}

type fullscreenCaps struct {
	err   error
	calls int
}

func (c *fullscreenCaps) RequestFullscreen(context.Context) error {
	c.calls++
	return c.err
}

type consumer struct {
	mu       sync.Mutex
	handoffs []*model.Handoff
}

func (c *consumer) Deliver(_ context.Context, h *model.Handoff) error {
	c.mu.Lock()
	c.handoffs = append(c.handoffs, h)
	c.mu.Unlock()
	return nil
}

func (c *consumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handoffs)
}

type fixture struct {
	m        *Manager
	clock    *timer.ManualClock
	notices  *notices
	caps     *fullscreenCaps
	consumer *consumer
}

func testQuiz(minutes int) *model.Quiz {
	qs := make([]model.Question, 10)
	for i := range qs {
		qs[i] = model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Type:          model.QuestionTypeSingleChoice,
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: "a",
			Marks:         1,
		}
	}
	return &model.Quiz{
		QuizID:          "quiz-1",
		Title:           "Physics",
		Questions:       qs,
		DurationMinutes: minutes,
		PassingMarks:    6,
		Instructions:    []string{"Stay in fullscreen", "No tab switching"},
	}
}

func newFixture(t *testing.T, minutes int, p config.Policy) *fixture {
	t.Helper()
	f := &fixture{
		clock:    timer.NewManualClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)),
		notices:  &notices{},
		caps:     &fullscreenCaps{},
		consumer: &consumer{},
	}
	f.m = New(uuid.New(), testQuiz(minutes), p, Deps{
		Clock:        f.clock,
		Notifier:     f.notices,
		Capabilities: f.caps,
		Consumer:     f.consumer,
		Pipeline:     submission.NewPipeline(submission.NewSigner("test-secret"), zerolog.Nop()),
		Log:          zerolog.Nop(),
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.m.ShowInstructions(); err != nil {
		t.Fatalf("show instructions: %v", err)
	}
	if err := f.m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// advance moves the clock one second at a time, draining after each step.
func (f *fixture) advance(seconds int) {
	for i := 0; i < seconds; i++ {
		f.clock.Advance(time.Second)
		f.m.Drain()
	}
}

func (f *fixture) signal(sig monitor.Signal) {
	f.m.Signal(sig)
	f.m.Drain()
}

var (
	hidden       = monitor.Signal{Kind: monitor.SignalVisibility, Hidden: true}
	visible      = monitor.Signal{Kind: monitor.SignalVisibility, Hidden: false}
	fsExit       = monitor.Signal{Kind: monitor.SignalFullscreen, Active: false}
	fsEnter      = monitor.Signal{Kind: monitor.SignalFullscreen, Active: true}
	activity     = monitor.Signal{Kind: monitor.SignalActivity}
	devtoolsF12  = monitor.Signal{Kind: monitor.SignalKey, Key: "F12"}
	tabSwitchSeq = []monitor.Signal{hidden, visible, hidden, visible, hidden}
)

func TestManager_Lifecycle(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())

	if got := f.m.State(); got != model.SessionStateNotStarted {
		t.Fatalf("state = %s", got)
	}
	if err := f.m.Start(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start before instructions: err = %v", err)
	}

	instr, err := f.m.ShowInstructions()
	if err != nil || len(instr) != 2 {
		t.Fatalf("instructions = %v, err = %v", instr, err)
	}
	if f.clock.Pending() != 0 {
		t.Fatal("timers started before the exam")
	}

	if err := f.m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := f.m.Snapshot()
	if snap.State != model.SessionStateActive || snap.StartedAt == nil || snap.TimeRemaining != 600 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.CurrentQuestionIndex != 0 {
		t.Errorf("current question = %d", snap.CurrentQuestionIndex)
	}
	if f.caps.calls != 1 {
		t.Errorf("fullscreen requests = %d", f.caps.calls)
	}

	if err := f.m.Abort("late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("abort while active: err = %v", err)
	}
	if _, err := f.m.ShowInstructions(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("instructions while active: err = %v", err)
	}
}

func TestManager_FullscreenDeniedAllowsRetry(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	f.caps.err = errors.New("user dismissed prompt")

	if _, err := f.m.ShowInstructions(); err != nil {
		t.Fatal(err)
	}
	err := f.m.Start(context.Background())
	if !errors.Is(err, ErrFullscreenDenied) {
		t.Fatalf("err = %v", err)
	}
	if got := f.m.State(); got != model.SessionStateInstructionsShown {
		t.Fatalf("state = %s", got)
	}
	if f.clock.Pending() != 0 {
		t.Fatal("timers started after denial")
	}
	if f.notices.count(model.NoticeError) != 1 {
		t.Error("expected one error notice")
	}

	f.caps.err = nil
	if err := f.m.Start(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := f.m.State(); got != model.SessionStateActive {
		t.Errorf("state = %s", got)
	}
}

func TestManager_FullscreenNotRequiredSkipsCapability(t *testing.T) {
	p := config.DefaultPolicy()
	p.FullscreenRequired = false
	f := newFixture(t, 10, p)
	f.caps.err = errors.New("unsupported")

	f.start(t)
	if f.caps.calls != 0 {
		t.Errorf("capability requested although not required")
	}
}

func TestManager_Abort(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	if _, err := f.m.ShowInstructions(); err != nil {
		t.Fatal(err)
	}
	if err := f.m.Abort("changed mind"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if got := f.m.State(); got != model.SessionStateAborted {
		t.Fatalf("state = %s", got)
	}
	select {
	case <-f.m.Finished():
	default:
		t.Error("finished not closed")
	}
	if err := f.m.Start(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("start after abort: err = %v", err)
	}
	if err := f.m.Abort("again"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second abort: err = %v", err)
	}
	if f.m.Signal(hidden) {
		t.Error("signal accepted after abort")
	}
	if f.consumer.count() != 0 {
		t.Error("aborted session delivered a report")
	}
}

func TestManager_CountdownMonotonic(t *testing.T) {
	f := newFixture(t, 1, config.DefaultPolicy())
	f.start(t)

	prev := f.m.Snapshot().TimeRemaining
	for i := 0; i < 70; i++ {
		f.advance(1)
		got := f.m.Snapshot().TimeRemaining
		if got > prev || got < 0 {
			t.Fatalf("step %d: time remaining %d after %d", i, got, prev)
		}
		prev = got
	}

	if got := f.m.State(); got != model.SessionStateCompleted {
		t.Fatalf("state = %s", got)
	}
	r, ok := f.m.Report()
	if !ok {
		t.Fatal("no report")
	}
	if !r.IsAutoSubmit || r.AutoSubmitReason != ReasonTimeLimit {
		t.Errorf("report = auto %v reason %q", r.IsAutoSubmit, r.AutoSubmitReason)
	}
	if r.Analytics.TimeRemaining != 0 || r.Analytics.TotalElapsedTime != 60 {
		t.Errorf("analytics = %+v", r.Analytics)
	}
	if f.clock.Pending() != 0 {
		t.Errorf("%d timers still pending after completion", f.clock.Pending())
	}
	if f.consumer.count() != 1 {
		t.Errorf("deliveries = %d", f.consumer.count())
	}
}

func TestManager_TimeWarningsOnce(t *testing.T) {
	p := config.DefaultPolicy()
	p.MaxIdleTimeSeconds = 1000
	f := newFixture(t, 6, p)
	f.start(t)

	f.advance(59)
	if f.notices.count(model.NoticeTimeWarning) != 0 {
		t.Fatal("time warning before threshold")
	}
	f.advance(1)
	if f.notices.count(model.NoticeTimeWarning) != 1 {
		t.Fatal("missing time warning at 300s")
	}
	f.advance(240)
	if f.notices.count(model.NoticeCriticalTimeWarning) != 1 {
		t.Fatal("missing critical warning at 60s")
	}
	f.advance(59)
	if f.notices.count(model.NoticeTimeWarning) != 1 || f.notices.count(model.NoticeCriticalTimeWarning) != 1 {
		t.Errorf("warnings repeated")
	}
}

func TestManager_TabSwitchEscalation(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	f.start(t)

	for _, sig := range tabSwitchSeq[:3] {
		f.signal(sig)
	}
	if got := f.m.State(); got != model.SessionStateActive {
		t.Fatalf("state after 2 switches = %s", got)
	}
	for _, sig := range tabSwitchSeq[3:] {
		f.signal(sig)
	}

	states := f.notices.states()
	if len(states) < 2 || states[len(states)-2] != model.SessionStateSubmitting {
		t.Fatalf("states = %v", states)
	}
	r, ok := f.m.Report()
	if !ok {
		t.Fatal("no report")
	}
	if !r.IsAutoSubmit || !strings.Contains(r.AutoSubmitReason, "3/3") {
		t.Errorf("reason = %q", r.AutoSubmitReason)
	}
	if r.Analytics.TabSwitchCount != 3 || len(r.SecurityEvents) != 3 {
		t.Errorf("tab switches = %d, events = %d", r.Analytics.TabSwitchCount, len(r.SecurityEvents))
	}
	if _, err := submission.VerifyChain(f.m.ID(), r.SecurityEvents); err != nil {
		t.Errorf("chain: %v", err)
	}
}

func TestManager_ExactlyOnceSameTurn(t *testing.T) {
	f := newFixture(t, 1, config.DefaultPolicy())
	f.start(t)

	// Timeout, two tab-switch violations and the critical strikes all queued
	// before the loop runs.
	f.clock.Advance(2 * time.Minute)
	for _, sig := range tabSwitchSeq {
		f.m.Signal(sig)
	}
	for i := 0; i < 10; i++ {
		f.m.Signal(devtoolsF12)
	}
	f.m.Drain()

	f.m.Submit()
	f.m.RequestTermination("late")
	f.m.Drain()

	if f.consumer.count() != 1 {
		t.Fatalf("pipeline ran %d times", f.consumer.count())
	}
	r, _ := f.m.Report()
	if r.AutoSubmitReason != ReasonTimeLimit {
		t.Errorf("first trigger lost: reason = %q", r.AutoSubmitReason)
	}
}

func TestManager_ExactlyOnceConcurrent(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	f.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.m.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				f.m.Submit()
			case 1:
				f.m.RequestTermination("Excessive suspicious activity detected")
			default:
				f.m.Signal(devtoolsF12)
			}
		}(i)
	}
	wg.Wait()

	select {
	case <-f.m.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	if f.consumer.count() != 1 {
		t.Errorf("pipeline ran %d times", f.consumer.count())
	}
	if got := f.m.State(); got != model.SessionStateCompleted {
		t.Errorf("state = %s", got)
	}
}

func TestManager_GracePeriod(t *testing.T) {
	tests := []struct {
		name        string
		restoreAt   int
		wantActive  bool
		wantFlagged bool
	}{
		{"restored at 5s", 5, true, false},
		{"restored at 11s", 11, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 10, config.DefaultPolicy())
			f.start(t)

			f.signal(fsExit)
			f.advance(tc.restoreAt)
			f.signal(fsEnter)
			f.advance(30)

			active := f.m.State() == model.SessionStateActive
			if active != tc.wantActive {
				t.Fatalf("state = %s", f.m.State())
			}
			if tc.wantFlagged {
				r, _ := f.m.Report()
				if r.AutoSubmitReason != "Failed to return to fullscreen mode" {
					t.Errorf("reason = %q", r.AutoSubmitReason)
				}
			}
		})
	}
}

func TestManager_StaleGraceExpiryIgnored(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	f.start(t)

	f.signal(fsExit)
	f.clock.Advance(9900 * time.Millisecond)
	f.m.Drain()

	// Restore and exit again are queued when the first grace timer fires,
	// so its expiry is processed after the second period has started.
	f.m.Signal(fsEnter)
	f.m.Signal(fsExit)
	f.clock.Advance(100 * time.Millisecond)
	f.m.Drain()

	if got := f.m.State(); got != model.SessionStateActive {
		t.Fatalf("state after first expiry = %s", got)
	}

	f.clock.Advance(9700 * time.Millisecond)
	f.m.Drain()
	if got := f.m.State(); got != model.SessionStateActive {
		t.Fatalf("second grace ended early: state = %s", got)
	}

	f.clock.Advance(300 * time.Millisecond)
	f.m.Drain()
	r, ok := f.m.Report()
	if !ok {
		t.Fatalf("second grace did not expire: state = %s", f.m.State())
	}
	if r.AutoSubmitReason != "Failed to return to fullscreen mode" {
		t.Errorf("reason = %q", r.AutoSubmitReason)
	}
}

func TestManager_BlurThenHideRecordsOnlyTabSwitch(t *testing.T) {
	blur := monitor.Signal{Kind: monitor.SignalFocus, Focused: false}

	t.Run("blur followed by hide", func(t *testing.T) {
		f := newFixture(t, 10, config.DefaultPolicy())
		f.start(t)

		f.signal(blur)
		f.signal(hidden)
		f.advance(2)

		events := f.m.Snapshot().SecurityEvents
		if len(events) != 1 || events[0].Type != model.EventTabSwitch {
			t.Fatalf("events = %+v", events)
		}
	})

	t.Run("blur alone", func(t *testing.T) {
		f := newFixture(t, 10, config.DefaultPolicy())
		f.start(t)

		f.signal(blur)
		if n := len(f.m.Snapshot().SecurityEvents); n != 0 {
			t.Fatalf("focus loss recorded before settling (%d events)", n)
		}
		f.advance(1)

		events := f.m.Snapshot().SecurityEvents
		if len(events) != 1 || events[0].Type != model.EventFocusLoss {
			t.Fatalf("events = %+v", events)
		}
	})
}

func TestManager_IdleReset(t *testing.T) {
	p := config.DefaultPolicy()
	f := newFixture(t, 10, p)
	f.start(t)

	f.advance(59)
	f.signal(activity)
	f.advance(1)
	if got := f.m.Snapshot().Counters.IdleCount; got != 0 {
		t.Fatalf("idle fired at 60s despite activity at 59s (count %d)", got)
	}

	f.advance(59)
	if got := f.m.Snapshot().Counters.IdleCount; got != 1 {
		t.Errorf("idle count = %d, want 1", got)
	}
}

func TestManager_SuppressedGesture(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	f.start(t)

	f.signal(devtoolsF12)
	if f.notices.count(model.NoticeSuppressed) != 1 {
		t.Error("expected suppress notice")
	}
	snap := f.m.Snapshot()
	if snap.Counters.SuspiciousActivityCount != 1 || len(snap.SecurityEvents) != 1 {
		t.Errorf("snapshot counters = %+v", snap.Counters)
	}
	if snap.SecurityEvents[0].Type != model.EventDeveloperTools {
		t.Errorf("event = %s", snap.SecurityEvents[0].Type)
	}
}

func TestManager_AnswersAndScore(t *testing.T) {
	f := newFixture(t, 10, config.DefaultPolicy())
	f.start(t)

	for i := 1; i <= 10; i++ {
		f.m.Visit(i - 1)
		ans := "a"
		if i > 7 {
			ans = "b"
		}
		f.m.SetAnswer(fmt.Sprintf("q%d", i), ans)
		f.m.Drain()
		f.advance(2)
	}
	f.m.ToggleMark("q3")
	f.m.SetAnswer("nope", "a")
	f.m.Drain()

	snap := f.m.Snapshot()
	if len(snap.Answers) != 10 || len(snap.VisitedQuestions) != 10 || len(snap.MarkedForReview) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if f.notices.count(model.NoticeError) != 1 {
		t.Error("unknown question not reported")
	}

	f.m.Submit()
	f.m.Drain()

	r, ok := f.m.Report()
	if !ok {
		t.Fatal("no report")
	}
	if r.Score != 7 || r.Percentage != 70.0 || !r.Passed || r.IsAutoSubmit {
		t.Errorf("report = %+v", r)
	}
	if r.Analytics.QuestionTimeSpent["q1"] != 2 {
		t.Errorf("time spent q1 = %d", r.Analytics.QuestionTimeSpent["q1"])
	}
	if r.Signature == "" {
		t.Error("report not signed")
	}

	if f.m.SetAnswer("q1", "b") {
		t.Error("answer accepted after completion")
	}
	if got := f.m.Snapshot().Answers["q1"]; got != "a" {
		t.Errorf("answer mutated after completion: %q", got)
	}
}
