// Package delivery hands session output to Redis: completed attempts for the
// results collaborator and security events for the live monitor.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrReportNotFound is returned when no report is stored for a session.
var ErrReportNotFound = errors.New("report not found")

const (
	// emitTimeout bounds a single sink write to Redis.
	emitTimeout = time.Second

	defaultSinkBuffer = 1024
	sinkBatchSize     = 64
)

// RedisConsumer delivers completed attempts.
type RedisConsumer struct {
	rdb       *redis.Client
	retention time.Duration
	log       zerolog.Logger
}

// NewRedisConsumer creates a consumer that keeps reports for retention.
func NewRedisConsumer(rdb *redis.Client, retention time.Duration, log zerolog.Logger) *RedisConsumer {
	return &RedisConsumer{
		rdb:       rdb,
		retention: retention,
		log:       log.With().Str("component", "results_consumer").Logger(),
	}
}

// Deliver queues the hand-off, stores the report and announces completion,
// all in one MULTI/EXEC.
func (c *RedisConsumer) Deliver(ctx context.Context, h *model.Handoff) error {
	handoff, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hand-off: %w", err)
	}
	report, err := json.Marshal(h.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	announce, err := json.Marshal(model.CompletedMessage(h.Report))
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}

	sessionID := h.Report.SessionID.String()
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, config.WorkerKey.CompletedAttemptsQueue, handoff)
	pipe.Set(ctx, config.CacheKey.SessionReportKey(sessionID), report, c.retention)
	pipe.Publish(ctx, config.CacheKey.QuizMonitorChannel(h.Report.QuizID), announce)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deliver hand-off: %w", err)
	}

	c.log.Info().
		Str("session_id", sessionID).
		Str("quiz_id", h.Report.QuizID).
		Msg("Hand-off delivered")
	return nil
}

// LoadReport reads a stored report after its session was evicted.
func (c *RedisConsumer) LoadReport(ctx context.Context, sessionID uuid.UUID) (*model.Report, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.SessionReportKey(sessionID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

// RedisEventSink buffers monitor messages in memory and pushes them onto a
// Redis list for the relay worker. Announce never blocks the session loop.
type RedisEventSink struct {
	ch      chan model.MonitorMessage
	push    func(ctx context.Context, batch []any) error
	dropped atomic.Int64
	log     zerolog.Logger
}

// NewRedisEventSink creates a sink holding up to buffer messages. Run must be
// started to move them to Redis.
func NewRedisEventSink(rdb *redis.Client, buffer int, log zerolog.Logger) *RedisEventSink {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	s := &RedisEventSink{
		ch:  make(chan model.MonitorMessage, buffer),
		log: log.With().Str("component", "event_sink").Logger(),
	}
	s.push = func(ctx context.Context, batch []any) error {
		return rdb.RPush(ctx, config.WorkerKey.SecurityEventsQueue, batch...).Err()
	}
	return s
}

// Emit queues a security event. Failures are logged, never returned: the
// session log stays authoritative.
func (s *RedisEventSink) Emit(quizID string, sessionID uuid.UUID, ev model.SecurityEvent) {
	s.Announce(model.MonitorMessage{
		Type:      model.MonitorSecurityEvent,
		QuizID:    quizID,
		SessionID: sessionID,
		Event:     &ev,
		Timestamp: ev.Timestamp,
	})
}

// Announce queues a lifecycle message for the monitor feed. A full buffer
// drops the message.
func (s *RedisEventSink) Announce(msg model.MonitorMessage) {
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
		s.log.Warn().
			Str("session_id", msg.SessionID.String()).
			Str("type", string(msg.Type)).
			Msg("Monitor buffer full, message dropped")
	}
}

// Dropped returns the number of messages lost to a full buffer.
func (s *RedisEventSink) Dropped() int64 {
	return s.dropped.Load()
}

// Run pushes buffered messages to Redis until ctx is canceled, then flushes
// what is left.
func (s *RedisEventSink) Run(ctx context.Context) {
	s.log.Info().Msg("Event sink started")
	for {
		select {
		case <-ctx.Done():
			s.flush()
			s.log.Info().Msg("Event sink stopped")
			return
		case msg := <-s.ch:
			s.write(ctx, s.collect(msg))
		}
	}
}

// collect takes first plus whatever is already buffered, up to sinkBatchSize.
func (s *RedisEventSink) collect(first model.MonitorMessage) []model.MonitorMessage {
	batch := []model.MonitorMessage{first}
	for len(batch) < sinkBatchSize {
		select {
		case msg := <-s.ch:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

func (s *RedisEventSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	for {
		select {
		case msg := <-s.ch:
			s.write(ctx, s.collect(msg))
		default:
			return
		}
	}
}

func (s *RedisEventSink) write(ctx context.Context, msgs []model.MonitorMessage) {
	batch := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			s.log.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to marshal monitor message")
			continue
		}
		batch = append(batch, data)
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()
	if err := s.push(ctx, batch); err != nil {
		s.log.Warn().Err(err).Int("count", len(batch)).Msg("Failed to queue monitor messages")
	}
}
