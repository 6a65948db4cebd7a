package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/timer"
)

type recorder struct {
	reasons []string
	notices []model.Notice
	events  []*model.SecurityEvent
}

func (r *recorder) RequestTermination(reason string) { r.reasons = append(r.reasons, reason) }
func (r *recorder) Notify(n model.Notice)            { r.notices = append(r.notices, n) }
func (r *recorder) Record(ev *model.SecurityEvent)   { r.events = append(r.events, ev) }

// graceTimers fires GraceExpired synchronously from ManualClock.Advance.
type graceTimers struct {
	sched  *timer.Scheduler
	engine *Engine
}

func (g *graceTimers) StartGrace(d time.Duration, gen uint64) Cancelable {
	return g.sched.After(d, func() { g.engine.GraceExpired(gen) })
}

func newTestEngine(p config.Policy) (*Engine, *recorder, *timer.ManualClock) {
	clock := timer.NewManualClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	rec := &recorder{}
	gt := &graceTimers{sched: timer.NewScheduler(clock)}
	e := New(p, Deps{
		Terminator: rec,
		Notifier:   rec,
		Recorder:   rec,
		Timers:     gt,
		Now:        clock.Now,
		Log:        zerolog.Nop(),
	})
	gt.engine = e
	return e, rec, clock
}

func event(t model.EventType, sev model.Severity) *model.SecurityEvent {
	return model.NewSecurityEvent(t, sev, string(t), time.Time{})
}

func TestEngine_TabSwitchLimit(t *testing.T) {
	e, rec, _ := newTestEngine(config.DefaultPolicy())

	e.Handle(event(model.EventTabSwitch, model.SeverityHigh))
	e.Handle(event(model.EventTabSwitch, model.SeverityHigh))
	if len(rec.reasons) != 0 {
		t.Fatalf("terminated early: %v", rec.reasons)
	}
	if len(rec.notices) != 2 || rec.notices[1].Kind != model.NoticeViolationWarning {
		t.Fatalf("expected two warnings, got %+v", rec.notices)
	}

	e.Handle(event(model.EventTabSwitch, model.SeverityHigh))
	if len(rec.reasons) != 1 || rec.reasons[0] != "Tab switch limit exceeded (3/3)" {
		t.Fatalf("reasons = %v", rec.reasons)
	}

	// Further events after escalation are ignored.
	e.Handle(event(model.EventTabSwitch, model.SeverityHigh))
	if len(rec.reasons) != 1 {
		t.Errorf("escalated twice: %v", rec.reasons)
	}
}

func TestEngine_FullscreenGraceRestored(t *testing.T) {
	e, rec, clock := newTestEngine(config.DefaultPolicy())

	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	if !e.GracePending() {
		t.Fatal("expected grace period")
	}
	clock.Advance(5 * time.Second)
	e.FullscreenRestored()
	clock.Advance(time.Minute)

	if len(rec.reasons) != 0 {
		t.Errorf("terminated after restore: %v", rec.reasons)
	}
	if e.Counters().SuspiciousActivityCount != 0 {
		t.Errorf("fullscreen exit counted as suspicious while grace applies")
	}
	last := rec.notices[len(rec.notices)-1]
	if last.Kind != model.NoticeFullscreenRestored {
		t.Errorf("last notice = %s", last.Kind)
	}
}

func TestEngine_FullscreenGraceExpired(t *testing.T) {
	e, rec, clock := newTestEngine(config.DefaultPolicy())

	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	clock.Advance(9 * time.Second)
	if len(rec.reasons) != 0 {
		t.Fatalf("terminated before grace elapsed")
	}
	clock.Advance(2 * time.Second)
	if len(rec.reasons) != 1 || rec.reasons[0] != ReasonFullscreen {
		t.Fatalf("reasons = %v", rec.reasons)
	}
}

func TestEngine_StaleGraceGenerationIgnored(t *testing.T) {
	e, rec, _ := newTestEngine(config.DefaultPolicy())

	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	e.FullscreenRestored()
	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))

	e.GraceExpired(1)
	if len(rec.reasons) != 0 || !e.GracePending() {
		t.Fatalf("expiry of a canceled period ended the current one: %v", rec.reasons)
	}
	e.GraceExpired(2)
	if len(rec.reasons) != 1 || rec.reasons[0] != ReasonFullscreen {
		t.Fatalf("reasons = %v", rec.reasons)
	}
}

func TestEngine_RepeatedExitKeepsSingleGrace(t *testing.T) {
	e, rec, clock := newTestEngine(config.DefaultPolicy())

	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	clock.Advance(8 * time.Second)
	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	clock.Advance(3 * time.Second)

	if len(rec.reasons) != 1 {
		t.Fatalf("expected the first grace to expire, got %v", rec.reasons)
	}
}

func TestEngine_FullscreenNotRequiredIsCritical(t *testing.T) {
	p := config.DefaultPolicy()
	p.FullscreenRequired = false
	p.SuspiciousActivityThreshold = 2
	e, rec, _ := newTestEngine(p)

	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	if e.GracePending() {
		t.Error("grace started although fullscreen is optional")
	}
	if got := e.Counters().SuspiciousActivityCount; got != 1 {
		t.Errorf("suspicious = %d, want 1", got)
	}
	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	if len(rec.reasons) != 1 || rec.reasons[0] != ReasonSuspicious {
		t.Errorf("reasons = %v", rec.reasons)
	}
}

func TestEngine_SuspiciousThreshold(t *testing.T) {
	e, rec, _ := newTestEngine(config.DefaultPolicy())

	for i := 0; i < 4; i++ {
		e.Handle(event(model.EventDeveloperTools, model.SeverityCritical))
	}
	if len(rec.reasons) != 0 {
		t.Fatalf("terminated after 4 strikes")
	}
	e.Handle(event(model.EventDeveloperTools, model.SeverityCritical))
	if len(rec.reasons) != 1 || rec.reasons[0] != ReasonSuspicious {
		t.Fatalf("reasons = %v", rec.reasons)
	}
}

func TestEngine_LowSeverityOnlyWarns(t *testing.T) {
	e, rec, _ := newTestEngine(config.DefaultPolicy())

	for i := 0; i < 20; i++ {
		e.Handle(event(model.EventRightClick, model.SeverityLow))
		e.Handle(event(model.EventCopyPaste, model.SeverityMedium))
	}
	if len(rec.reasons) != 0 {
		t.Errorf("low and medium events escalated: %v", rec.reasons)
	}
	if got := e.Counters(); got.SuspiciousActivityCount != 0 || got.TabSwitchCount != 0 {
		t.Errorf("counters changed: %+v", got)
	}
	if len(rec.notices) != 40 {
		t.Errorf("notices = %d, want 40", len(rec.notices))
	}
}

func TestEngine_IdleStrikes(t *testing.T) {
	p := config.DefaultPolicy()
	p.SuspiciousActivityThreshold = 2
	e, rec, _ := newTestEngine(p)

	for i := 0; i < 5; i++ {
		e.Handle(event(model.EventIdle, model.SeverityMedium))
	}
	c := e.Counters()
	if c.IdleCount != 5 || c.SuspiciousActivityCount != 1 {
		t.Fatalf("counters = %+v", c)
	}
	e.Handle(event(model.EventIdle, model.SeverityMedium))
	if len(rec.reasons) != 1 || rec.reasons[0] != ReasonSuspicious {
		t.Errorf("reasons = %v", rec.reasons)
	}
}

func TestEngine_FocusAuditDiagnostic(t *testing.T) {
	e, rec, _ := newTestEngine(config.DefaultPolicy())

	for i := 0; i < 100; i++ {
		e.Tick(i < 40)
	}
	e.Audit()

	c := e.Counters()
	if c.FocusTimeAccumulated != 40 || c.TotalElapsedTime != 100 {
		t.Fatalf("counters = %+v", c)
	}
	if c.FocusPercentage() != 40 {
		t.Errorf("focus = %v, want 40", c.FocusPercentage())
	}
	if c.FocusAuditFailures != 1 || c.SuspiciousActivityCount != 0 {
		t.Errorf("counters = %+v", c)
	}
	if len(rec.events) != 1 || rec.events[0].Type != model.EventFocusLoss {
		t.Fatalf("events = %+v", rec.events)
	}
	if !strings.Contains(rec.events[0].Description, "40.0%") {
		t.Errorf("description = %q", rec.events[0].Description)
	}
	if len(rec.reasons) != 0 {
		t.Errorf("diagnostic audit escalated")
	}
}

func TestEngine_FocusAuditEnforced(t *testing.T) {
	p := config.DefaultPolicy()
	p.EnforceFocusRatio = true
	e, _, _ := newTestEngine(p)

	for i := 0; i < 100; i++ {
		e.Tick(false)
	}
	e.Audit()
	if got := e.Counters().SuspiciousActivityCount; got != 1 {
		t.Errorf("suspicious = %d, want 1", got)
	}
}

func TestEngine_FocusAuditWaitsForMinimumElapsed(t *testing.T) {
	e, rec, _ := newTestEngine(config.DefaultPolicy())

	for i := 0; i < 30; i++ {
		e.Tick(false)
	}
	e.Audit()
	if len(rec.events) != 0 {
		t.Errorf("audit ran before minimum elapsed time")
	}
}

func TestEngine_FocusNeverExceedsElapsed(t *testing.T) {
	e, _, _ := newTestEngine(config.DefaultPolicy())

	for i := 0; i < 50; i++ {
		e.Tick(true)
		c := e.Counters()
		if c.FocusTimeAccumulated > c.TotalElapsedTime {
			t.Fatalf("focus %d > elapsed %d", c.FocusTimeAccumulated, c.TotalElapsedTime)
		}
	}
}

func TestEngine_StopCancelsGrace(t *testing.T) {
	e, rec, clock := newTestEngine(config.DefaultPolicy())

	e.Handle(event(model.EventFullscreenExit, model.SeverityCritical))
	e.Stop()
	clock.Advance(time.Minute)
	if len(rec.reasons) != 0 {
		t.Errorf("grace fired after stop: %v", rec.reasons)
	}
}
