package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/trinity/internal/loop"
	"github.com/san-kum/trinity/internal/trinity"
)

// Scenario is a scripted sequence of panel events.
type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Steps       []Step        `yaml:"steps"`
	Sweep       *DampingSweep `yaml:"sweep"`
}

// Step is one panel event. Exactly one of Preset or Custom is set, unless
// the step only pauses or waits.
type Step struct {
	Preset string        `yaml:"preset"`
	Custom *string       `yaml:"custom"`
	Pause  time.Duration `yaml:"pause"`
	Wait   bool          `yaml:"wait"`
}

// DampingSweep commits evenly spaced custom values from Min to Max.
type DampingSweep struct {
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	NumSteps int     `yaml:"steps"`
	Settle   bool    `yaml:"settle"`
}

func (s DampingSweep) Expand() []Step {
	if s.NumSteps < 1 {
		return nil
	}
	steps := make([]Step, 0, s.NumSteps)
	for i := 0; i < s.NumSteps; i++ {
		v := s.Min
		if s.NumSteps > 1 {
			v += float64(i) * (s.Max - s.Min) / float64(s.NumSteps-1)
		}
		raw := strconv.FormatFloat(v, 'f', 4, 64)
		steps = append(steps, Step{Custom: &raw, Wait: s.Settle})
	}
	return steps
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Sweep != nil {
		sc.Steps = append(sc.Steps, sc.Sweep.Expand()...)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	for i, st := range sc.Steps {
		if st.Preset != "" && st.Custom != nil {
			return fmt.Errorf("step %d: preset and custom are exclusive", i+1)
		}
		if st.Preset != "" {
			if _, err := trinity.ParsePreset(st.Preset); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		if st.Pause < 0 {
			return fmt.Errorf("step %d: negative pause", i+1)
		}
	}
	return nil
}

// StepResult records what a step dispatched. Err holds rejected input;
// rejection does not stop the run.
type StepResult struct {
	Index int
	Event string
	Seq   uint64
	Err   error
}

type Report struct {
	Scenario string
	Steps    []StepResult
	Stats    loop.Stats
	Elapsed  time.Duration
}

// Run feeds the scenario through l and waits for every request to settle.
func Run(ctx context.Context, sc *Scenario, l *loop.Loop) (*Report, error) {
	start := time.Now()
	rep := &Report{Scenario: sc.Name, Steps: make([]StepResult, 0, len(sc.Steps))}

	for i, st := range sc.Steps {
		res := StepResult{Index: i + 1}
		var err error
		switch {
		case st.Preset != "":
			p, _ := trinity.ParsePreset(st.Preset)
			res.Event = "preset " + p.String()
			res.Seq, err = l.SelectPreset(p)
		case st.Custom != nil:
			res.Event = "custom " + strconv.Quote(*st.Custom)
			res.Seq, err = l.CommitCustom(*st.Custom)
		default:
			res.Event = "idle"
		}
		if errors.Is(err, loop.ErrStopped) {
			return rep, err
		}
		res.Err = err
		slog.Debug("scenario step", "scenario", sc.Name, "step", res.Index, "event", res.Event, "seq", res.Seq, "error", err)

		if st.Wait {
			if err := l.Wait(ctx); err != nil {
				return rep, fmt.Errorf("step %d wait: %w", i+1, err)
			}
		}
		if st.Pause > 0 {
			select {
			case <-time.After(st.Pause):
			case <-ctx.Done():
				return rep, ctx.Err()
			}
		}
		rep.Steps = append(rep.Steps, res)
	}

	if err := l.Wait(ctx); err != nil {
		return rep, err
	}
	rep.Stats = l.Stats()
	rep.Elapsed = time.Since(start)
	return rep, nil
}
