package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrFullscreenRefused is returned when the client reports it could not
// enter fullscreen.
var ErrFullscreenRefused = errors.New("client refused fullscreen")

// ErrNoClient is returned when a capability is requested with no client attached.
var ErrNoClient = errors.New("no client connected")

// Hub connects one session to its client connections. It fans notices out
// and carries the fullscreen capability round trip.
type Hub struct {
	now func() time.Time

	mu      sync.Mutex
	subs    map[chan model.Notice]struct{}
	pending chan bool
}

// NewHub creates an empty hub.
func NewHub(now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{now: now, subs: make(map[chan model.Notice]struct{})}
}

// Subscribe attaches a listener with the given buffer. The returned func
// detaches it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan model.Notice, func()) {
	ch := make(chan model.Notice, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of attached listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Notify never blocks; a listener with a full buffer misses the notice.
func (h *Hub) Notify(n model.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// RequestFullscreen asks the client to enter fullscreen and waits for its
// answer or ctx.
func (h *Hub) RequestFullscreen(ctx context.Context) error {
	reply := make(chan bool, 1)
	h.mu.Lock()
	if len(h.subs) == 0 {
		h.mu.Unlock()
		return ErrNoClient
	}
	h.pending = reply
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.pending == reply {
			h.pending = nil
		}
		h.mu.Unlock()
	}()

	h.Notify(model.Notice{
		Kind:      model.NoticeRequestFullscreen,
		Message:   "Please enter fullscreen mode to begin",
		Timestamp: h.now(),
	})

	select {
	case granted := <-reply:
		if !granted {
			return ErrFullscreenRefused
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FullscreenResult delivers the client's answer. It reports false when no
// request is waiting.
func (h *Hub) FullscreenResult(granted bool) bool {
	h.mu.Lock()
	p := h.pending
	h.pending = nil
	h.mu.Unlock()
	if p == nil {
		return false
	}
	p <- granted
	return true
}
