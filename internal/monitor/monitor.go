// Package monitor turns raw environment signals into typed security events.
// It performs detection and classification only; escalation lives in the
// policy package.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// FocusLossSettle is how long a focus loss is held back. Browsers blur the
// window just before hiding it, so a tab switch within this window replaces
// the focus loss.
const FocusLossSettle = 500 * time.Millisecond

// Options selects which gestures are blocked.
type Options struct {
	CopyPasteDisabled  bool
	RightClickDisabled bool
	MaxIdle            time.Duration
}

// Detection is the outcome of classifying one signal.
type Detection struct {
	// Event is nil when the signal is not a violation.
	Event *model.SecurityEvent
	// Suppress asks the client to cancel the gesture's default effect.
	Suppress bool
	// Activity resets the idle watch.
	Activity bool
	// FullscreenRestored is set when the runtime re-entered fullscreen.
	FullscreenRestored bool
	// PendingFocusLoss is non-zero when a focus loss is held back. The owner
	// calls SettleFocusLoss with it after FocusLossSettle.
	PendingFocusLoss uint64
}

// Monitor tracks the environment status of one session.
type Monitor struct {
	opts Options
	now  func() time.Time

	mu         sync.Mutex
	open       bool
	closed     bool
	visible    bool
	focused    bool
	fullscreen bool

	pending    *model.SecurityEvent
	pendingGen uint64
}

// New creates a monitor. It ignores signals until Open is called.
func New(opts Options, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		opts:    opts,
		now:     now,
		visible: true,
		focused: true,
	}
}

// Open subscribes the monitor. fullscreen is the runtime state at start.
func (m *Monitor) Open(fullscreen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.open = true
	m.fullscreen = fullscreen
}

// Close unsubscribes the monitor; later signals classify to nothing.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.open = false
	m.pending = nil
}

// Focused reports whether the exam window is visible and holds input focus.
func (m *Monitor) Focused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible && m.focused
}

// Fullscreen reports the last known fullscreen state.
func (m *Monitor) Fullscreen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreen
}

// Classify translates one signal into a detection.
func (m *Monitor) Classify(sig Signal) Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return Detection{}
	}

	at := sig.At
	if at.IsZero() {
		at = m.now()
	}

	switch sig.Kind {
	case SignalVisibility:
		if sig.Hidden {
			wasVisible := m.visible
			m.visible = false
			m.pending = nil
			if !wasVisible {
				return Detection{}
			}
			return Detection{Event: model.NewSecurityEvent(
				model.EventTabSwitch, model.SeverityHigh,
				"Exam tab or window was hidden", at)}
		}
		m.visible = true
		return Detection{Activity: true}

	case SignalFullscreen:
		if sig.Active {
			restored := !m.fullscreen
			m.fullscreen = true
			return Detection{FullscreenRestored: restored}
		}
		if !m.fullscreen {
			return Detection{}
		}
		m.fullscreen = false
		return Detection{Event: model.NewSecurityEvent(
			model.EventFullscreenExit, model.SeverityCritical,
			"Exited fullscreen mode", at)}

	case SignalFocus:
		if sig.Focused {
			m.focused = true
			return Detection{Activity: true}
		}
		wasFocused := m.focused
		m.focused = false
		if !wasFocused || !m.visible {
			return Detection{}
		}
		m.pendingGen++
		m.pending = model.NewSecurityEvent(
			model.EventFocusLoss, model.SeverityMedium,
			"Exam window lost input focus", at)
		return Detection{PendingFocusLoss: m.pendingGen}

	case SignalKey:
		return m.classifyKeyLocked(sig, at)

	case SignalPointer:
		if sig.ContextMenu || sig.Button == 2 {
			if !m.opts.RightClickDisabled {
				return Detection{Activity: true}
			}
			return Detection{
				Event: model.NewSecurityEvent(
					model.EventRightClick, model.SeverityLow,
					"Context menu blocked", at),
				Suppress: true,
				Activity: true,
			}
		}
		return Detection{Activity: true}

	case SignalActivity:
		return Detection{Activity: true}
	}

	return Detection{}
}

func (m *Monitor) classifyKeyLocked(sig Signal, at time.Time) Detection {
	verdict, combo := classifyKey(sig)
	switch verdict {
	case keyDevTools:
		return Detection{
			Event: model.NewSecurityEvent(
				model.EventDeveloperTools, model.SeverityCritical,
				fmt.Sprintf("Developer tools shortcut blocked (%s)", combo), at),
			Suppress: true,
			Activity: true,
		}
	case keySavePrint:
		return Detection{
			Event: model.NewSecurityEvent(
				model.EventDeveloperTools, model.SeverityCritical,
				fmt.Sprintf("Save/print shortcut blocked (%s)", combo), at),
			Suppress: true,
			Activity: true,
		}
	case keyClipboard:
		if !m.opts.CopyPasteDisabled {
			return Detection{Activity: true}
		}
		return Detection{
			Event: model.NewSecurityEvent(
				model.EventCopyPaste, model.SeverityMedium,
				fmt.Sprintf("Clipboard shortcut blocked (%s)", combo), at),
			Suppress: true,
			Activity: true,
		}
	}
	return Detection{Activity: true}
}

// SettleFocusLoss releases the focus loss held back under gen. It yields
// nothing when the window was hidden in the meantime.
func (m *Monitor) SettleFocusLoss(gen uint64) Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.pending == nil || gen != m.pendingGen {
		return Detection{}
	}
	ev := m.pending
	m.pending = nil
	return Detection{Event: ev}
}

// IdleExpired classifies an idle-watch expiry.
func (m *Monitor) IdleExpired() Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return Detection{}
	}
	return Detection{Event: model.NewSecurityEvent(
		model.EventIdle, model.SeverityMedium,
		fmt.Sprintf("No activity for %d seconds", int(m.opts.MaxIdle.Seconds())), m.now())}
}
