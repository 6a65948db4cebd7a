// Package replay drives a scripted session on a manual clock, for
// reproducing proctoring decisions offline.
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/stemsi/exstem-proctor/internal/catalog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"gopkg.in/yaml.v3"
)

// Scenario is a quiz, a policy and a timed script of client input.
type Scenario struct {
	Name string `yaml:"name"`
	// QuizFile is resolved relative to the scenario file.
	QuizFile string        `yaml:"quiz_file"`
	Quiz     *model.Quiz   `yaml:"quiz"`
	Policy   config.Policy `yaml:"policy"`
	// DenyFullscreen makes the client refuse the fullscreen request.
	DenyFullscreen bool   `yaml:"deny_fullscreen"`
	Steps          []Step `yaml:"steps"`
}

// Step is one client action at At seconds after start. Exactly one action
// field is set.
type Step struct {
	At     int             `yaml:"at"`
	Signal *monitor.Signal `yaml:"signal"`
	Answer *AnswerStep     `yaml:"answer"`
	Mark   string          `yaml:"mark"`
	Visit  *int            `yaml:"visit"`
	Submit bool            `yaml:"submit"`
}

type AnswerStep struct {
	QuestionID string `yaml:"question_id"`
	Value      string `yaml:"value"`
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Signal != nil, s.Answer != nil, s.Mark != "", s.Visit != nil, s.Submit} {
		if set {
			n++
		}
	}
	return n
}

// Decode reads a scenario. Policy fields not named keep their defaults.
func Decode(r io.Reader) (*Scenario, error) {
	sc := &Scenario{Policy: config.DefaultPolicy()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Policy.Validate(); err != nil {
		return nil, err
	}
	for i, st := range sc.Steps {
		if st.At < 0 {
			return nil, fmt.Errorf("step %d: negative offset", i)
		}
		if st.actions() != 1 {
			return nil, fmt.Errorf("step %d: want exactly one action, got %d", i, st.actions())
		}
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool { return sc.Steps[i].At < sc.Steps[j].At })
	return sc, nil
}

// Load reads a scenario file and its quiz.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := Decode(f)
	if err != nil {
		return nil, err
	}
	switch {
	case sc.Quiz != nil && sc.QuizFile != "":
		return nil, errors.New("scenario sets both quiz and quiz_file")
	case sc.QuizFile != "":
		p := sc.QuizFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		if sc.Quiz, err = catalog.LoadYAML(p); err != nil {
			return nil, err
		}
	case sc.Quiz != nil:
		catalog.Normalize(sc.Quiz)
		if err := catalog.Validate(sc.Quiz); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("scenario has no quiz")
	}
	return sc, nil
}
