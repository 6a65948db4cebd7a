// Package policy applies the violation escalation rules to security events
// and timer ticks. It decides; the session manager acts.
package policy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Auto-submit reasons.
const (
	ReasonFullscreen = "Failed to return to fullscreen mode"
	ReasonSuspicious = "Excessive suspicious activity detected"
)

// TabSwitchReason formats the tab switch auto-submit reason.
func TabSwitchReason(count, limit int) string {
	return fmt.Sprintf("Tab switch limit exceeded (%d/%d)", count, limit)
}

// Terminator is the single escalation funnel into the session manager.
type Terminator interface {
	RequestTermination(reason string)
}

// Notifier receives advisory warnings for the test-taker.
type Notifier interface {
	Notify(n model.Notice)
}

// Recorder appends engine-generated events to the session log.
type Recorder interface {
	Record(ev *model.SecurityEvent)
}

// Cancelable is a pending one-shot timer.
type Cancelable interface {
	Cancel()
}

// GraceTimers starts the fullscreen grace period. The owner must call
// Engine.GraceExpired(gen) on its own event queue when the timer fires.
type GraceTimers interface {
	StartGrace(d time.Duration, gen uint64) Cancelable
}

// Deps wires the engine to its owner.
type Deps struct {
	Terminator Terminator
	Notifier   Notifier
	Recorder   Recorder
	Timers     GraceTimers
	Now        func() time.Time
	Log        zerolog.Logger
}

// Engine holds the violation counters of one session. It is not safe for
// concurrent use; the session manager calls it from its event loop only.
type Engine struct {
	policy config.Policy
	deps   Deps
	log    zerolog.Logger

	counters   model.ViolationCounters
	grace      Cancelable
	graceGen   uint64
	terminated bool
}

// New creates an engine for the given policy.
func New(p config.Policy, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		policy: p,
		deps:   deps,
		log:    deps.Log.With().Str("component", "policy_engine").Logger(),
	}
}

// Counters returns a copy of the violation counters.
func (e *Engine) Counters() model.ViolationCounters {
	return e.counters
}

// GracePending reports whether a fullscreen grace period is running.
func (e *Engine) GracePending() bool {
	return e.grace != nil
}

// Handle applies the first matching rule to a recorded security event.
func (e *Engine) Handle(ev *model.SecurityEvent) {
	if e.terminated || ev == nil {
		return
	}

	switch {
	case ev.Type == model.EventTabSwitch:
		e.onTabSwitch()
	case ev.Type == model.EventFullscreenExit && e.policy.FullscreenRequired:
		e.onFullscreenExit()
	case ev.Severity == model.SeverityCritical:
		e.strike(ev)
	case ev.Type == model.EventIdle:
		e.onIdle(ev)
	default:
		e.warn(ev.Description, map[string]any{"type": ev.Type, "severity": ev.Severity})
	}
}

func (e *Engine) onTabSwitch() {
	e.counters.TabSwitchCount++
	n, limit := e.counters.TabSwitchCount, e.policy.TabSwitchLimit
	if n >= limit {
		e.terminate(TabSwitchReason(n, limit))
		return
	}
	e.warn(fmt.Sprintf("Tab switch detected (%d/%d)", n, limit), map[string]any{
		"tab_switch_count": n,
		"tab_switch_limit": limit,
	})
}

func (e *Engine) onFullscreenExit() {
	if e.grace != nil {
		return
	}
	d := e.policy.GracePeriod()
	e.graceGen++
	e.grace = e.deps.Timers.StartGrace(d, e.graceGen)
	e.notify(model.Notice{
		Kind:    model.NoticeFullscreenGrace,
		Message: fmt.Sprintf("Return to fullscreen within %d seconds or the exam will be submitted", e.policy.WarningGracePeriodSeconds),
		Data:    map[string]any{"grace_period_seconds": e.policy.WarningGracePeriodSeconds},
	})
	e.log.Debug().Dur("grace", d).Msg("Fullscreen grace period started")
}

// FullscreenRestored cancels a pending grace period.
func (e *Engine) FullscreenRestored() {
	if e.grace == nil {
		return
	}
	e.grace.Cancel()
	e.grace = nil
	e.notify(model.Notice{Kind: model.NoticeFullscreenRestored, Message: "Fullscreen restored"})
}

// GraceExpired escalates when grace period gen ends without fullscreen
// being restored. Expiries of earlier, canceled periods are ignored.
func (e *Engine) GraceExpired(gen uint64) {
	if e.grace == nil || e.terminated || gen != e.graceGen {
		return
	}
	e.grace = nil
	e.terminate(ReasonFullscreen)
}

func (e *Engine) onIdle(ev *model.SecurityEvent) {
	e.counters.IdleCount++
	e.warn(ev.Description, map[string]any{"idle_count": e.counters.IdleCount})

	n := e.policy.IdleStrikesPerSuspicion
	if n > 0 && e.counters.IdleCount%n == 0 {
		e.strike(ev)
	}
}

// strike adds one suspicious-activity strike and escalates at the threshold.
func (e *Engine) strike(ev *model.SecurityEvent) {
	e.counters.SuspiciousActivityCount++
	n, limit := e.counters.SuspiciousActivityCount, e.policy.SuspiciousActivityThreshold
	if n >= limit {
		e.terminate(ReasonSuspicious)
		return
	}
	e.warn(ev.Description, map[string]any{
		"suspicious_activity_count":     n,
		"suspicious_activity_threshold": limit,
	})
}

// Tick accounts one elapsed second.
func (e *Engine) Tick(focused bool) {
	e.counters.TotalElapsedTime++
	if focused {
		e.counters.FocusTimeAccumulated++
	}
}

// Audit runs the periodic focus-ratio check. A failure is diagnostic only
// unless the policy enforces the focus ratio.
func (e *Engine) Audit() {
	if e.terminated {
		return
	}
	c := e.counters
	if c.TotalElapsedTime == 0 || c.TotalElapsedTime < e.policy.MinimumAuditElapsedSeconds {
		return
	}
	pct := c.FocusPercentage()
	if pct >= e.policy.MinimumFocusPercentage {
		return
	}

	ev := model.NewSecurityEvent(model.EventFocusLoss, model.SeverityMedium,
		fmt.Sprintf("Focus ratio %.1f%% below minimum %.1f%%", pct, e.policy.MinimumFocusPercentage),
		e.deps.Now())
	e.deps.Recorder.Record(ev)
	e.counters.FocusAuditFailures++

	e.log.Info().
		Float64("focus_percentage", pct).
		Int("elapsed", c.TotalElapsedTime).
		Msg("Focus audit failed")

	if e.policy.EnforceFocusRatio {
		e.strike(ev)
	}
}

// Stop cancels any pending grace period.
func (e *Engine) Stop() {
	if e.grace != nil {
		e.grace.Cancel()
		e.grace = nil
	}
	e.terminated = true
}

func (e *Engine) terminate(reason string) {
	e.terminated = true
	if e.grace != nil {
		e.grace.Cancel()
		e.grace = nil
	}
	e.log.Warn().Str("reason", reason).Msg("Escalating to auto-submit")
	e.deps.Terminator.RequestTermination(reason)
}

func (e *Engine) warn(msg string, data map[string]any) {
	e.notify(model.Notice{Kind: model.NoticeViolationWarning, Message: msg, Data: data})
}

func (e *Engine) notify(n model.Notice) {
	if e.deps.Notifier == nil {
		return
	}
	n.Timestamp = e.deps.Now()
	e.deps.Notifier.Notify(n)
}
