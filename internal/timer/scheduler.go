package timer

import (
	"sync"
	"time"
)

// Handle is a cancelable timer owned by a Scheduler.
// A canceled handle never invokes its callback again, even if the underlying
// clock timer already fired and is waiting to run.
type Handle struct {
	s        *Scheduler
	mu       sync.Mutex
	stopper  Stopper
	gen      uint64
	canceled bool
}

// Cancel stops the handle. Safe to call more than once.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.canceled {
		h.mu.Unlock()
		return
	}
	h.canceled = true
	st := h.stopper
	h.stopper = nil
	h.mu.Unlock()

	if st != nil {
		st.Stop()
	}
	h.s.forget(h)
}

// Active reports whether the handle can still fire.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.canceled
}

// arm (re)schedules fn after d, replacing any pending callback.
func (h *Handle) arm(d time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return
	}
	if h.stopper != nil {
		h.stopper.Stop()
	}
	h.gen++
	gen := h.gen
	h.stopper = h.s.clock.AfterFunc(d, func() {
		h.mu.Lock()
		stale := h.canceled || h.gen != gen
		h.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Scheduler owns every timer of one session and tears them down together.
type Scheduler struct {
	clock   Clock
	mu      sync.Mutex
	handles map[*Handle]struct{}
	closed  bool
}

// NewScheduler creates a Scheduler on the given clock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		clock:   clock,
		handles: make(map[*Handle]struct{}),
	}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

func (s *Scheduler) newHandle() *Handle {
	h := &Handle{s: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		h.canceled = true
		return h
	}
	s.handles[h] = struct{}{}
	return h
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}

// Active returns the number of live handles.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// After runs fn once after d.
func (s *Scheduler) After(d time.Duration, fn func()) *Handle {
	h := s.newHandle()
	h.arm(d, func() {
		s.forget(h)
		fn()
	})
	return h
}

// Every runs fn every interval until canceled.
func (s *Scheduler) Every(interval time.Duration, fn func()) *Handle {
	h := s.newHandle()
	var tick func()
	tick = func() {
		// Re-arm first so fn may cancel its own handle.
		h.arm(interval, tick)
		fn()
	}
	h.arm(interval, tick)
	return h
}

// StartCountdown ticks once per second with the seconds left, reaching 0
// exactly once, and then calls onExpire.
func (s *Scheduler) StartCountdown(durationSeconds int, onTick func(remaining int), onExpire func()) *Handle {
	h := s.newHandle()
	remaining := durationSeconds
	if remaining <= 0 {
		h.arm(0, func() {
			s.forget(h)
			onExpire()
		})
		return h
	}

	var tick func()
	tick = func() {
		remaining--
		if remaining > 0 {
			h.arm(time.Second, tick)
		}
		onTick(remaining)
		if remaining == 0 {
			s.forget(h)
			onExpire()
		}
	}
	h.arm(time.Second, tick)
	return h
}

// StartAudit runs onAudit every interval.
func (s *Scheduler) StartAudit(interval time.Duration, onAudit func()) *Handle {
	return s.Every(interval, onAudit)
}

// IdleWatch fires when no activity was reported for the configured window.
type IdleWatch struct {
	h      *Handle
	max    time.Duration
	onIdle func()
}

// StartIdleWatch arms an idle watch. After firing it re-arms from that instant.
func (s *Scheduler) StartIdleWatch(max time.Duration, onIdle func()) *IdleWatch {
	w := &IdleWatch{h: s.newHandle(), max: max, onIdle: onIdle}
	w.h.arm(max, w.fire)
	return w
}

// Reset pushes the idle deadline to now+max. Call it on activity signals only.
func (w *IdleWatch) Reset() {
	w.h.arm(w.max, w.fire)
}

// Cancel stops the watch.
func (w *IdleWatch) Cancel() {
	w.h.Cancel()
}

func (w *IdleWatch) fire() {
	w.h.arm(w.max, w.fire)
	w.onIdle()
}

// CancelAll stops every timer and refuses new ones.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}
