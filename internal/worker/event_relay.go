package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventRelay moves monitor messages from the sink queue onto each quiz's
// live monitor channel.
type EventRelay struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewEventRelay(rdb *redis.Client, log zerolog.Logger) *EventRelay {
	return &EventRelay{
		rdb: rdb,
		log: log.With().Str("component", "event_relay").Logger(),
	}
}

// relayItem keeps the raw payload so it can be published or requeued as is.
type relayItem struct {
	channel string
	raw     string
}

// Start runs until ctx is canceled, then flushes what it holds.
func (w *EventRelay) Start(ctx context.Context) {
	w.log.Info().Msg("EventRelay started")

	b := newBatcher(BatchSize, BatchTimeout, time.Now)

	for {
		if b.due() {
			w.flushSafe(ctx, b.take())
		}

		select {
		case <-ctx.Done():
			w.shutdown(b.take())
			return
		default:
		}

		// BLPop blocks for PollTimeout and returns as soon as data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.SecurityEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		item, err := decodeRelayItem(result[1])
		if err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed monitor message")
			continue
		}
		b.add(item)
	}
}

func decodeRelayItem(raw string) (relayItem, error) {
	var msg model.MonitorMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return relayItem{}, err
	}
	if msg.QuizID == "" {
		return relayItem{}, errors.New("monitor message without quiz_id")
	}
	return relayItem{
		channel: config.CacheKey.QuizMonitorChannel(msg.QuizID),
		raw:     raw,
	}, nil
}

// flushSafe publishes a batch in one pipeline and requeues it on failure.
func (w *EventRelay) flushSafe(ctx context.Context, batch []relayItem) {
	if len(batch) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, it := range batch {
		pipe.Publish(ctx, it.channel, it.raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Publish failed, requeueing")
		w.requeue(batch)
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Monitor messages relayed")
}

func (w *EventRelay) requeue(items []relayItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, it := range items {
		pipe.RPush(ctx, config.WorkerKey.SecurityEventsQueue, it.raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("Failed to requeue monitor messages, dropping them")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued monitor messages")
	// Avoid thrashing while Redis recovers.
	time.Sleep(2 * time.Second)
}

func (w *EventRelay) shutdown(buffer []relayItem) {
	w.log.Info().Msg("EventRelay stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(ctx, buffer)
}

// batcher collects items until the batch is full or old enough.
type batcher struct {
	size    int
	timeout time.Duration
	now     func() time.Time

	items     []relayItem
	lastFlush time.Time
}

func newBatcher(size int, timeout time.Duration, now func() time.Time) *batcher {
	return &batcher{
		size:      size,
		timeout:   timeout,
		now:       now,
		items:     make([]relayItem, 0, size),
		lastFlush: now(),
	}
}

func (b *batcher) add(it relayItem) {
	b.items = append(b.items, it)
}

func (b *batcher) due() bool {
	if len(b.items) == 0 {
		return false
	}
	return len(b.items) >= b.size || b.now().Sub(b.lastFlush) >= b.timeout
}

// take hands out the buffered items and restarts the flush clock.
func (b *batcher) take() []relayItem {
	out := b.items
	b.items = make([]relayItem, 0, b.size)
	b.lastFlush = b.now()
	return out
}
