package model

import (
	"time"

	"github.com/google/uuid"
)

// Analytics summarises proctoring behaviour for the report.
type Analytics struct {
	TotalElapsedTime        int            `json:"total_elapsed_time"`
	TimeRemaining           int            `json:"time_remaining"`
	FocusPercentage         float64        `json:"focus_percentage"`
	TabSwitchCount          int            `json:"tab_switch_count"`
	SuspiciousActivityCount int            `json:"suspicious_activity_count"`
	IdleCount               int            `json:"idle_count"`
	FocusAuditFailures      int            `json:"focus_audit_failures"`
	QuestionTimeSpent       map[string]int `json:"question_time_spent"`
	AnsweredCount           int            `json:"answered_count"`
	VisitedCount            int            `json:"visited_count"`
	MarkedForReview         []string       `json:"marked_for_review"`
}

// Report is the single immutable attempt result of a session.
type Report struct {
	SessionID        uuid.UUID       `json:"session_id"`
	QuizID           string          `json:"quiz_id"`
	Score            float64         `json:"score"`
	TotalMarks       float64         `json:"total_marks"`
	Percentage       float64         `json:"percentage"`
	Passed           bool            `json:"passed"`
	IsAutoSubmit     bool            `json:"is_auto_submit"`
	AutoSubmitReason string          `json:"auto_submit_reason,omitempty"`
	SecurityEvents   []SecurityEvent `json:"security_events"`
	Analytics        Analytics       `json:"analytics"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	EventChainDigest string          `json:"event_chain_digest"`
	Signature        string          `json:"signature,omitempty"`
}

// Handoff is delivered once to the results consumer at completion.
type Handoff struct {
	Report         *Report           `json:"report"`
	Answers        map[string]string `json:"answers"`
	SecurityEvents []SecurityEvent   `json:"security_events"`
}
