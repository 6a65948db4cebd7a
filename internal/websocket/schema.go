package websocket

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/monitor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart            Action = "start"
	ActionSignal           Action = "signal"
	ActionAnswer           Action = "answer"
	ActionMark             Action = "mark"
	ActionVisit            Action = "visit"
	ActionSubmit           Action = "submit"
	ActionFullscreenResult Action = "fullscreen_result"
	ActionAbort            Action = "abort"
	ActionPing             Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SignalRequest reports one environment signal.
type SignalRequest struct {
	Action Action         `json:"action"`
	Signal monitor.Signal `json:"signal"`
}

// AnswerRequest records an answer.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id" validate:"required,max=64"`
	Value      string `json:"value" validate:"max=1024"`
}

// MarkRequest toggles the review mark of a question.
type MarkRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id" validate:"required,max=64"`
}

// VisitRequest navigates to a question.
type VisitRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index" validate:"min=0"`
}

// FullscreenResultRequest answers a request_fullscreen event.
type FullscreenResultRequest struct {
	Action  Action `json:"action"`
	Granted bool   `json:"granted"`
}

// AbortRequest cancels a session that has not started.
type AbortRequest struct {
	Action Action `json:"action"`
	Reason string `json:"reason" validate:"max=256"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState             Event = "state"
	EventNotice            Event = "notice"
	EventTick              Event = "tick"
	EventRequestFullscreen Event = "request_fullscreen"
	EventSuppress          Event = "suppress"
	EventCompleted         Event = "completed"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// EventMessage is every server frame.
type EventMessage struct {
	Event     Event          `json:"event"`
	Kind      string         `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}
