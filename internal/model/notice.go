package model

import "time"

// NoticeKind tags advisory messages pushed to the test-taker.
type NoticeKind string

const (
	NoticeState               NoticeKind = "state"
	NoticeTick                NoticeKind = "tick"
	NoticeTimeWarning         NoticeKind = "time_warning"
	NoticeCriticalTimeWarning NoticeKind = "critical_time_warning"
	NoticeViolationWarning    NoticeKind = "violation_warning"
	NoticeFullscreenGrace     NoticeKind = "fullscreen_grace"
	NoticeFullscreenRestored  NoticeKind = "fullscreen_restored"
	NoticeRequestFullscreen   NoticeKind = "request_fullscreen"
	NoticeSuppressed          NoticeKind = "suppressed"
	NoticeError               NoticeKind = "error"
	NoticeCompleted           NoticeKind = "completed"
)

// Notice is a non-blocking message for the test-taker UI.
type Notice struct {
	Kind      NoticeKind     `json:"kind"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
