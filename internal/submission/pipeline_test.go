package submission

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var testNow = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func TestLedger_ChainVerifies(t *testing.T) {
	id := uuid.New()
	l := NewLedger(id)
	empty := l.Head()

	for i, typ := range []model.EventType{model.EventTabSwitch, model.EventCopyPaste, model.EventIdle} {
		ev := model.NewSecurityEvent(typ, model.SeverityMedium, string(typ), testNow.Add(time.Duration(i)*time.Second))
		if err := l.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
		if ev.Sequence != i+1 || ev.Digest == "" {
			t.Fatalf("event not sequenced: %+v", ev)
		}
	}
	if l.Head() == empty {
		t.Fatal("head did not move")
	}

	head, err := VerifyChain(id, l.Events())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if head != l.Head() {
		t.Errorf("head = %s, want %s", head, l.Head())
	}
}

func TestLedger_TamperDetected(t *testing.T) {
	id := uuid.New()
	l := NewLedger(id)
	for i := 0; i < 3; i++ {
		_ = l.Append(model.NewSecurityEvent(model.EventTabSwitch, model.SeverityHigh, "tab", testNow))
	}

	events := l.Events()
	events[1].Severity = model.SeverityLow
	if _, err := VerifyChain(id, events); !errors.Is(err, ErrChainBroken) {
		t.Errorf("edited event: err = %v", err)
	}

	events = l.Events()
	events = append(events[:1], events[2:]...)
	if _, err := VerifyChain(id, events); !errors.Is(err, ErrChainBroken) {
		t.Errorf("dropped event: err = %v", err)
	}

	if _, err := VerifyChain(uuid.New(), l.Events()); !errors.Is(err, ErrChainBroken) {
		t.Errorf("foreign session: err = %v", err)
	}
}

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("test-secret")
	r := &model.Report{
		SessionID:        uuid.New(),
		QuizID:           "quiz-1",
		Score:            7,
		TotalMarks:       10,
		Percentage:       70,
		Passed:           true,
		SubmittedAt:      testNow,
		EventChainDigest: "abc",
	}
	sig, err := s.Sign(r)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	r.Signature = sig

	if err := s.VerifyReport(r); err != nil {
		t.Fatalf("verify: %v", err)
	}

	r.Score = 10
	if err := s.VerifyReport(r); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("altered score: err = %v", err)
	}

	r.Score = 7
	if err := NewSigner("other").VerifyReport(r); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong key: err = %v", err)
	}
}

func TestPipeline_Run(t *testing.T) {
	id := uuid.New()
	quiz := &model.Quiz{QuizID: "quiz-1", Title: "Geo", Questions: tenQuestions(), DurationMinutes: 10, PassingMarks: 6}

	answers := map[string]string{}
	for i := 0; i < 7; i++ {
		answers[quiz.Questions[i].ID] = "a"
	}

	l := NewLedger(id)
	_ = l.Append(model.NewSecurityEvent(model.EventTabSwitch, model.SeverityHigh, "tab", testNow))

	signer := NewSigner("test-secret")
	h := NewPipeline(signer, zerolog.Nop()).Run(Input{
		SessionID:        id,
		Quiz:             quiz,
		Answers:          answers,
		TimeSpent:        map[string]time.Duration{"q1": 1500 * time.Millisecond, "q2": 30 * time.Second},
		Visited:          []int{0, 1},
		Marked:           []string{"q2"},
		Counters:         model.ViolationCounters{TabSwitchCount: 1, FocusTimeAccumulated: 40, TotalElapsedTime: 100},
		TimeRemaining:    500,
		Ledger:           l,
		IsAutoSubmit:     true,
		AutoSubmitReason: "Time limit reached",
		SubmittedAt:      testNow,
	})

	r := h.Report
	if r.Score != 7 || r.TotalMarks != 10 || r.Percentage != 70 || !r.Passed {
		t.Errorf("report grade = %v/%v %v%% passed=%v", r.Score, r.TotalMarks, r.Percentage, r.Passed)
	}
	if !r.IsAutoSubmit || r.AutoSubmitReason != "Time limit reached" {
		t.Errorf("auto submit = %v %q", r.IsAutoSubmit, r.AutoSubmitReason)
	}
	a := r.Analytics
	if a.FocusPercentage != 40 || a.TabSwitchCount != 1 || a.TotalElapsedTime != 100 || a.TimeRemaining != 500 {
		t.Errorf("analytics = %+v", a)
	}
	if a.QuestionTimeSpent["q1"] != 2 || a.QuestionTimeSpent["q2"] != 30 || a.QuestionTimeSpent["q10"] != 0 {
		t.Errorf("time spent = %v", a.QuestionTimeSpent)
	}
	if a.AnsweredCount != 7 || a.VisitedCount != 2 || len(a.MarkedForReview) != 1 {
		t.Errorf("analytics = %+v", a)
	}
	if len(h.SecurityEvents) != 1 || r.EventChainDigest != l.Head() {
		t.Errorf("events = %d digest = %s", len(h.SecurityEvents), r.EventChainDigest)
	}
	if err := signer.VerifyReport(r); err != nil {
		t.Errorf("signature: %v", err)
	}

	answers["q8"] = "a"
	if h.Answers["q8"] != "" {
		t.Error("hand-off shares the caller's answer map")
	}
}
