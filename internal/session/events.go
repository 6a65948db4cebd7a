package session

import "github.com/stemsi/exstem-proctor/internal/monitor"

type signalEvent struct{ sig monitor.Signal }

type tickEvent struct{ remaining int }

type expiredEvent struct{}

type idleEvent struct{}

type auditEvent struct{}

type graceExpiredEvent struct{ gen uint64 }

type focusSettledEvent struct{ gen uint64 }

type answerEvent struct{ questionID, value string }

type markEvent struct{ questionID string }

type visitEvent struct{ index int }

type submitEvent struct{}

type finalizeEvent struct{}

func (signalEvent) eventName() string       { return "signal" }
func (tickEvent) eventName() string         { return "tick" }
func (expiredEvent) eventName() string      { return "expired" }
func (idleEvent) eventName() string         { return "idle" }
func (auditEvent) eventName() string        { return "audit" }
func (graceExpiredEvent) eventName() string { return "grace_expired" }
func (focusSettledEvent) eventName() string { return "focus_settled" }
func (answerEvent) eventName() string       { return "answer" }
func (markEvent) eventName() string         { return "mark" }
func (visitEvent) eventName() string        { return "visit" }
func (submitEvent) eventName() string       { return "submit" }
func (finalizeEvent) eventName() string     { return "finalize" }
