package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"github.com/stemsi/exstem-proctor/internal/timer"
)

// Epoch is the manual clock's start, so replays are reproducible.
var Epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

var errFullscreenRefused = errors.New("fullscreen refused by scenario")

// Result is the outcome of one replay.
type Result struct {
	Report  *model.Report
	Handoff *model.Handoff
	Notices []model.Notice
	// Elapsed is the simulated time from start to completion.
	Elapsed time.Duration
}

type recorder struct {
	mu      sync.Mutex
	notices []model.Notice
	handoff *model.Handoff
	deny    bool
}

func (r *recorder) Notify(n model.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) RequestFullscreen(context.Context) error {
	if r.deny {
		return errFullscreenRefused
	}
	return nil
}

func (r *recorder) Deliver(_ context.Context, h *model.Handoff) error {
	r.mu.Lock()
	r.handoff = h
	r.mu.Unlock()
	return nil
}

// Run plays sc to completion. Steps after the session finished are ignored.
func Run(sc *Scenario, signer *submission.Signer, log zerolog.Logger) (*Result, error) {
	clock := timer.NewManualClock(Epoch)
	rec := &recorder{deny: sc.DenyFullscreen}

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("exstem-proctor/replay/"+sc.Name))
	m := session.New(id, sc.Quiz, sc.Policy, session.Deps{
		Clock:        clock,
		Notifier:     rec,
		Capabilities: rec,
		Consumer:     rec,
		Pipeline:     submission.NewPipeline(signer, log),
		Log:          log,
	})

	if _, err := m.ShowInstructions(); err != nil {
		return nil, err
	}
	if err := m.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	elapsed := 0
	advanceTo := func(at int) {
		for elapsed < at && !finished(m) {
			clock.Advance(time.Second)
			elapsed++
			m.Drain()
		}
	}

	for _, st := range sc.Steps {
		advanceTo(st.At)
		if finished(m) {
			break
		}
		apply(m, st)
		m.Drain()
	}

	// Let the countdown run out if the script never submitted.
	advanceTo(sc.Quiz.DurationSeconds() + 1)
	m.Drain()

	r, ok := m.Report()
	if !ok {
		return nil, fmt.Errorf("session ended in %s without a report", m.State())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return &Result{
		Report:  r,
		Handoff: rec.handoff,
		Notices: append([]model.Notice(nil), rec.notices...),
		Elapsed: time.Duration(elapsed) * time.Second,
	}, nil
}

func apply(m *session.Manager, st Step) {
	switch {
	case st.Signal != nil:
		m.Signal(*st.Signal)
	case st.Answer != nil:
		m.SetAnswer(st.Answer.QuestionID, st.Answer.Value)
	case st.Mark != "":
		m.ToggleMark(st.Mark)
	case st.Visit != nil:
		m.Visit(*st.Visit)
	case st.Submit:
		m.Submit()
	}
}

func finished(m *session.Manager) bool {
	select {
	case <-m.Finished():
		return true
	default:
		return false
	}
}
