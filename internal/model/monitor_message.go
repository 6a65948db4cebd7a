package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorMessageType tags messages on a quiz's live monitor channel.
type MonitorMessageType string

const (
	MonitorSessionStarted   MonitorMessageType = "session_started"
	MonitorSecurityEvent    MonitorMessageType = "security_event"
	MonitorSessionCompleted MonitorMessageType = "session_completed"
	MonitorSessionAborted   MonitorMessageType = "session_aborted"
)

// MonitorMessage is one entry in the proctor's live feed.
type MonitorMessage struct {
	Type      MonitorMessageType `json:"type"`
	QuizID    string             `json:"quiz_id"`
	SessionID uuid.UUID          `json:"session_id"`
	Event     *SecurityEvent     `json:"event,omitempty"`

	Score            *float64 `json:"score,omitempty"`
	Percentage       *float64 `json:"percentage,omitempty"`
	IsAutoSubmit     bool     `json:"is_auto_submit,omitempty"`
	AutoSubmitReason string   `json:"auto_submit_reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// CompletedMessage summarises a report for the monitor feed.
func CompletedMessage(r *Report) MonitorMessage {
	score, pct := r.Score, r.Percentage
	return MonitorMessage{
		Type:             MonitorSessionCompleted,
		QuizID:           r.QuizID,
		SessionID:        r.SessionID,
		Score:            &score,
		Percentage:       &pct,
		IsAutoSubmit:     r.IsAutoSubmit,
		AutoSubmitReason: r.AutoSubmitReason,
		Timestamp:        r.SubmittedAt,
	}
}
