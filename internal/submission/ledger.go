package submission

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"golang.org/x/crypto/blake2b"
)

// ErrChainBroken is returned when a recorded digest does not match its event.
var ErrChainBroken = errors.New("security event chain broken")

// Ledger is the append-only security event log of one session. Each event
// is linked to its predecessor by a BLAKE2b-256 digest.
type Ledger struct {
	mu     sync.Mutex
	events []model.SecurityEvent
	head   [blake2b.Size256]byte
}

// NewLedger starts a chain rooted at the session ID.
func NewLedger(sessionID uuid.UUID) *Ledger {
	return &Ledger{head: genesis(sessionID)}
}

func genesis(sessionID uuid.UUID) [blake2b.Size256]byte {
	return blake2b.Sum256([]byte("exstem-proctor:" + sessionID.String()))
}

// canonicalEvent is the digest input; Digest itself is excluded.
type canonicalEvent struct {
	ID          uuid.UUID       `json:"id"`
	Sequence    int             `json:"sequence"`
	Type        model.EventType `json:"type"`
	Severity    model.Severity  `json:"severity"`
	Description string          `json:"description"`
	Timestamp   string          `json:"timestamp"`
}

func link(prev [blake2b.Size256]byte, ev *model.SecurityEvent) ([blake2b.Size256]byte, error) {
	payload, err := json.Marshal(canonicalEvent{
		ID:          ev.ID,
		Sequence:    ev.Sequence,
		Type:        ev.Type,
		Severity:    ev.Severity,
		Description: ev.Description,
		Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return prev, fmt.Errorf("encode event: %w", err)
	}
	buf := make([]byte, 0, len(prev)+len(payload))
	buf = append(buf, prev[:]...)
	buf = append(buf, payload...)
	return blake2b.Sum256(buf), nil
}

// Append sequences ev, links it into the chain and stores a copy.
// The caller's event is updated with its Sequence and Digest.
func (l *Ledger) Append(ev *model.SecurityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Sequence = len(l.events) + 1
	next, err := link(l.head, ev)
	if err != nil {
		return err
	}
	ev.Digest = hex.EncodeToString(next[:])
	l.head = next
	l.events = append(l.events, *ev)
	return nil
}

// Events returns a copy of the log in append order.
func (l *Ledger) Events() []model.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.SecurityEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Head returns the hex digest of the latest link.
func (l *Ledger) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return hex.EncodeToString(l.head[:])
}

// VerifyChain recomputes every link and returns the chain head.
func VerifyChain(sessionID uuid.UUID, events []model.SecurityEvent) (string, error) {
	head := genesis(sessionID)
	for i := range events {
		ev := events[i]
		if ev.Sequence != i+1 {
			return "", fmt.Errorf("%w: event %d has sequence %d", ErrChainBroken, i+1, ev.Sequence)
		}
		next, err := link(head, &ev)
		if err != nil {
			return "", err
		}
		if hex.EncodeToString(next[:]) != ev.Digest {
			return "", fmt.Errorf("%w: digest mismatch at sequence %d", ErrChainBroken, ev.Sequence)
		}
		head = next
	}
	return hex.EncodeToString(head[:]), nil
}
