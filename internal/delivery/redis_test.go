package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type pushRecorder struct {
	mu      sync.Mutex
	batches [][]any
}

func (r *pushRecorder) push(_ context.Context, batch []any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func (r *pushRecorder) messages(t *testing.T) []model.MonitorMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MonitorMessage
	for _, batch := range r.batches {
		for _, item := range batch {
			var msg model.MonitorMessage
			if err := json.Unmarshal(item.([]byte), &msg); err != nil {
				t.Fatalf("unmarshal pushed message: %v", err)
			}
			out = append(out, msg)
		}
	}
	return out
}

func TestEventSink_AnnounceNeverBlocks(t *testing.T) {
	sink := NewRedisEventSink(nil, 1, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			sink.Announce(model.MonitorMessage{Type: model.MonitorSecurityEvent, QuizID: "algebra-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Announce blocked on a full buffer")
	}
	if got := sink.Dropped(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

func TestEventSink_RunFlushesBufferedMessages(t *testing.T) {
	rec := &pushRecorder{}
	sink := NewRedisEventSink(nil, 16, zerolog.Nop())
	sink.push = rec.push

	sessionID := uuid.New()
	ev := model.SecurityEvent{Type: model.EventTabSwitch, Severity: model.SeverityHigh}
	sink.Emit("algebra-1", sessionID, ev)
	sink.Emit("algebra-1", sessionID, ev)
	sink.Announce(model.MonitorMessage{Type: model.MonitorSecurityEvent, QuizID: "algebra-1", SessionID: sessionID})

	// Already canceled: Run must still move everything buffered to Redis.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)

	msgs := rec.messages(t)
	if len(msgs) != 3 {
		t.Fatalf("pushed %d messages, want 3", len(msgs))
	}
	if msgs[0].Event == nil || msgs[0].Event.Type != model.EventTabSwitch || msgs[0].SessionID != sessionID {
		t.Errorf("first message = %+v", msgs[0])
	}
}
