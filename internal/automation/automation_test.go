package automation

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/trinity/internal/loop"
	"github.com/san-kum/trinity/internal/trinity"
)

const overtakeYAML = `
name: overtake
description: a slow custom render overtaken by a preset
steps:
  - preset: Custom
  - custom: "0.5"
  - preset: amplified
  - custom: "0.05"
  - wait: true
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(overtakeYAML))
	require.NoError(t, err)
	assert.Equal(t, "overtake", sc.Name)
	require.Len(t, sc.Steps, 5)
	require.NotNil(t, sc.Steps[1].Custom)
	assert.Equal(t, "0.5", *sc.Steps[1].Custom)
	assert.True(t, sc.Steps[4].Wait)
}

func TestParseScenarioInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":     "name: nothing\n",
		"exclusive": "steps:\n  - preset: Stable\n    custom: \"0.3\"\n",
		"unknown":   "steps:\n  - preset: Wobbly\n",
		"pause":     "steps:\n  - pause: -1s\n",
	}
	for name, doc := range tests {
		_, err := ParseScenario([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestDampingSweepExpand(t *testing.T) {
	steps := DampingSweep{Min: 0.1, Max: 0.9, NumSteps: 5, Settle: true}.Expand()
	require.Len(t, steps, 5)
	assert.Equal(t, "0.1000", *steps[0].Custom)
	assert.Equal(t, "0.5000", *steps[2].Custom)
	assert.Equal(t, "0.9000", *steps[4].Custom)
	assert.True(t, steps[0].Wait)

	assert.Empty(t, DampingSweep{NumSteps: 0}.Expand())
	single := DampingSweep{Min: 0.3, Max: 0.9, NumSteps: 1}.Expand()
	require.Len(t, single, 1)
	assert.Equal(t, "0.3000", *single[0].Custom)
}

func TestParseScenarioWithSweep(t *testing.T) {
	sc, err := ParseScenario([]byte("name: sweep\nsweep:\n  min: 0.2\n  max: 0.8\n  steps: 4\n"))
	require.NoError(t, err)
	assert.Len(t, sc.Steps, 4)
}

// slowFirst delays the first request so the second overtakes it.
func slowFirst(ctx context.Context, req trinity.Request) (*trinity.Result, error) {
	if req.Seq == 1 {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &trinity.Result{DiagnosticText: req.Snapshot.String()}, nil
}

func TestRun(t *testing.T) {
	sc, err := ParseScenario([]byte(overtakeYAML))
	require.NoError(t, err)

	sink := loop.NewTextSink(io.Discard)
	l := loop.New(trinity.NewController(trinity.NewDispatcher(trinity.FetcherFunc(slowFirst), sink)))
	l.Start(context.Background())
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := Run(ctx, sc, l)
	require.NoError(t, err)

	require.Len(t, rep.Steps, 5)
	assert.Zero(t, rep.Steps[0].Seq)
	assert.Equal(t, uint64(1), rep.Steps[1].Seq)
	assert.Equal(t, uint64(2), rep.Steps[2].Seq)
	assert.ErrorIs(t, rep.Steps[3].Err, trinity.ErrInvalidDamping)

	assert.Equal(t, 2, rep.Stats.Dispatched)
	assert.Equal(t, 1, rep.Stats.Rejected)
	assert.Equal(t, 1, rep.Stats.Outcomes[trinity.OutcomeRendered])
	assert.Equal(t, 1, rep.Stats.Outcomes[trinity.OutcomeSuperseded])

	require.NotNil(t, sink.Last())
	assert.Equal(t, "Amplified", sink.Last().DiagnosticText)
}
