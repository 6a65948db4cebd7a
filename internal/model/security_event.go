package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a detected security event.
type EventType string

const (
	EventTabSwitch      EventType = "tab_switch"
	EventFullscreenExit EventType = "fullscreen_exit"
	EventDeveloperTools EventType = "developer_tools"
	EventCopyPaste      EventType = "copy_paste"
	EventRightClick     EventType = "right_click"
	EventIdle           EventType = "idle"
	EventFocusLoss      EventType = "focus_loss"
)

// Severity is the ordered seriousness of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// SecurityEvent is one entry in the append-only proctoring log.
type SecurityEvent struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	// Sequence and Digest are assigned when the event is appended to the ledger.
	Sequence int    `json:"sequence"`
	Digest   string `json:"digest,omitempty"`
}

// NewSecurityEvent builds an unsequenced event.
func NewSecurityEvent(t EventType, sev Severity, desc string, at time.Time) *SecurityEvent {
	return &SecurityEvent{
		ID:          uuid.New(),
		Type:        t,
		Severity:    sev,
		Description: desc,
		Timestamp:   at,
	}
}
