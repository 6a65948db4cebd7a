package replay

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/catalog"
	"github.com/stemsi/exstem-proctor/internal/submission"
)

const inlineScenario = `
name: inline
deny_fullscreen: false
policy:
  fullscreen_required: false
quiz:
  quiz_id: inline-quiz
  title: Inline
  duration: 1
  passing_marks: 1
  questions:
    - id: q1
      type: numeric
      correct_answer: "2.5"
      tolerance: 0.1
      marks: 1
steps:
  - at: 3
    answer: {question_id: q1, value: "2.45"}
`

func TestLoadAndRunTabSwitchScenario(t *testing.T) {
	sc, err := Load("testdata/tab-switch.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Quiz.QuizID != "physics-basics" || sc.Policy.TabSwitchLimit != 3 {
		t.Fatalf("unexpected scenario: quiz=%s limit=%d", sc.Quiz.QuizID, sc.Policy.TabSwitchLimit)
	}
	if !sc.Policy.FullscreenRequired {
		t.Fatal("unset policy fields should keep defaults")
	}

	signer := submission.NewSigner("replay-secret")
	res, err := Run(sc, signer, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	r := res.Report
	if !r.IsAutoSubmit || !strings.Contains(r.AutoSubmitReason, "3/3") {
		t.Fatalf("reason = %q auto = %v", r.AutoSubmitReason, r.IsAutoSubmit)
	}
	if res.Elapsed != 30*time.Second {
		t.Fatalf("elapsed = %s, want 30s", res.Elapsed)
	}
	if r.Score != 2 || r.Analytics.TabSwitchCount != 3 {
		t.Fatalf("score = %v tab switches = %d", r.Score, r.Analytics.TabSwitchCount)
	}
	if res.Handoff == nil || res.Handoff.Report != r {
		t.Fatal("hand-off not delivered")
	}
	if err := signer.VerifyReport(r); err != nil {
		t.Fatalf("signature: %v", err)
	}
	if _, err := submission.VerifyChain(r.SessionID, r.SecurityEvents); err != nil {
		t.Fatalf("chain: %v", err)
	}

	again, err := Run(sc, signer, zerolog.Nop())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Report.EventChainDigest == "" || again.Report.SessionID != r.SessionID {
		t.Fatal("replays of one scenario should share the session id")
	}
}

func TestRunTimesOutWithoutSubmit(t *testing.T) {
	sc, err := Decode(strings.NewReader(inlineScenario))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	catalog.Normalize(sc.Quiz)

	res, err := Run(sc, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Report.AutoSubmitReason != "Time limit reached" {
		t.Fatalf("reason = %q", res.Report.AutoSubmitReason)
	}
	if res.Elapsed != 60*time.Second {
		t.Fatalf("elapsed = %s", res.Elapsed)
	}
	if res.Report.Score != 1 {
		t.Fatalf("score = %v", res.Report.Score)
	}
}

func TestDecodeRejectsAmbiguousSteps(t *testing.T) {
	_, err := Decode(strings.NewReader(`
steps:
  - at: 1
    submit: true
    mark: q1
`))
	if err == nil || !strings.Contains(err.Error(), "exactly one action") {
		t.Fatalf("err = %v", err)
	}

	_, err = Decode(strings.NewReader("unknown_field: 1\n"))
	if err == nil {
		t.Fatal("unknown fields should be rejected")
	}
}
