package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState enumerates the proctored session lifecycle.
type SessionState string

const (
	SessionStateNotStarted        SessionState = "NOT_STARTED"
	SessionStateInstructionsShown SessionState = "INSTRUCTIONS_SHOWN"
	SessionStateActive            SessionState = "ACTIVE"
	SessionStateSubmitting        SessionState = "SUBMITTING"
	SessionStateCompleted         SessionState = "COMPLETED"
	SessionStateAborted           SessionState = "ABORTED"
)

// Terminal reports whether no further mutation is permitted in this state.
func (s SessionState) Terminal() bool {
	return s == SessionStateSubmitting || s == SessionStateCompleted || s == SessionStateAborted
}

// ViolationCounters are the running tallies driving the escalation policy.
// Times are in whole seconds.
type ViolationCounters struct {
	TabSwitchCount          int `json:"tab_switch_count"`
	SuspiciousActivityCount int `json:"suspicious_activity_count"`
	IdleCount               int `json:"idle_count"`
	FocusAuditFailures      int `json:"focus_audit_failures"`
	FocusTimeAccumulated    int `json:"focus_time_accumulated"`
	TotalElapsedTime        int `json:"total_elapsed_time"`
}

// FocusPercentage returns focused time over elapsed time, 100 before the first tick.
func (c ViolationCounters) FocusPercentage() float64 {
	if c.TotalElapsedTime == 0 {
		return 100
	}
	return float64(c.FocusTimeAccumulated) / float64(c.TotalElapsedTime) * 100
}

// SessionSnapshot is a read-only copy of the exam session aggregate.
type SessionSnapshot struct {
	ID                   uuid.UUID         `json:"id"`
	QuizID               string            `json:"quiz_id"`
	State                SessionState      `json:"state"`
	TimeRemaining        int               `json:"time_remaining"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	VisitedQuestions     []int             `json:"visited_questions"`
	MarkedForReview      []string          `json:"marked_for_review"`
	Answers              map[string]string `json:"answers"`
	Counters             ViolationCounters `json:"violation_counters"`
	SecurityEvents       []SecurityEvent   `json:"security_events"`
	AutoSubmitReason     string            `json:"auto_submit_reason,omitempty"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
}

// CreateSessionRequest is the payload for opening a proctored session.
type CreateSessionRequest struct {
	QuizID string `json:"quiz_id" binding:"required,min=1,max=64"`
}
