package submission

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Input is everything the pipeline needs from a frozen session.
type Input struct {
	SessionID        uuid.UUID
	Quiz             *model.Quiz
	Answers          map[string]string
	TimeSpent        map[string]time.Duration
	Visited          []int
	Marked           []string
	Counters         model.ViolationCounters
	TimeRemaining    int
	Ledger           *Ledger
	IsAutoSubmit     bool
	AutoSubmitReason string
	SubmittedAt      time.Time
}

// Pipeline grades a session and assembles its signed report.
type Pipeline struct {
	signer *Signer
	log    zerolog.Logger
}

// NewPipeline creates a Pipeline. A nil signer leaves reports unsigned.
func NewPipeline(signer *Signer, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		signer: signer,
		log:    log.With().Str("component", "submission_pipeline").Logger(),
	}
}

// Run produces the hand-off for one session. It must be called once.
func (p *Pipeline) Run(in Input) *model.Handoff {
	grade := Score(in.Quiz.Questions, in.Answers)

	events := in.Ledger.Events()
	report := &model.Report{
		SessionID:        in.SessionID,
		QuizID:           in.Quiz.QuizID,
		Score:            grade.Obtained,
		TotalMarks:       grade.Total,
		Percentage:       grade.Percentage,
		Passed:           grade.Obtained >= in.Quiz.PassingMarks,
		IsAutoSubmit:     in.IsAutoSubmit,
		AutoSubmitReason: in.AutoSubmitReason,
		SecurityEvents:   events,
		Analytics:        p.analytics(in),
		SubmittedAt:      in.SubmittedAt,
		EventChainDigest: in.Ledger.Head(),
	}

	if p.signer != nil {
		sig, err := p.signer.Sign(report)
		if err != nil {
			p.log.Error().Err(err).Str("session_id", in.SessionID.String()).Msg("Report signing failed")
		} else {
			report.Signature = sig
		}
	}

	answers := make(map[string]string, len(in.Answers))
	for k, v := range in.Answers {
		answers[k] = v
	}

	p.log.Info().
		Str("session_id", in.SessionID.String()).
		Str("quiz_id", in.Quiz.QuizID).
		Float64("score", grade.Obtained).
		Float64("total", grade.Total).
		Int("correct", grade.Correct).
		Bool("auto_submit", in.IsAutoSubmit).
		Str("reason", in.AutoSubmitReason).
		Int("security_events", len(events)).
		Msg("Session graded")

	return &model.Handoff{
		Report:         report,
		Answers:        answers,
		SecurityEvents: events,
	}
}

func (p *Pipeline) analytics(in Input) model.Analytics {
	spent := make(map[string]int, len(in.Quiz.Questions))
	for _, q := range in.Quiz.Questions {
		spent[q.ID] = int(math.Round(in.TimeSpent[q.ID].Seconds()))
	}

	answered := 0
	for _, q := range in.Quiz.Questions {
		if v, ok := in.Answers[q.ID]; ok && v != "" {
			answered++
		}
	}

	marked := in.Marked
	if marked == nil {
		marked = []string{}
	}

	c := in.Counters
	return model.Analytics{
		TotalElapsedTime:        c.TotalElapsedTime,
		TimeRemaining:           in.TimeRemaining,
		FocusPercentage:         math.Round(c.FocusPercentage()*100) / 100,
		TabSwitchCount:          c.TabSwitchCount,
		SuspiciousActivityCount: c.SuspiciousActivityCount,
		IdleCount:               c.IdleCount,
		FocusAuditFailures:      c.FocusAuditFailures,
		QuestionTimeSpent:       spent,
		AnsweredCount:           answered,
		VisitedCount:            len(in.Visited),
		MarkedForReview:         marked,
	}
}
