package render

import (
	"math"

	"github.com/san-kum/trinity/internal/wire"
)

// SettleBand is the relative deviation from the ground state that counts
// as settled.
const SettleBand = 0.05

// Stability is the fraction of observed samples within threshold of the
// ground state.
type Stability struct {
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{threshold: threshold}
}

func (s *Stability) Observe(pos float64) {
	s.samples++
	if math.Abs(pos-GroundState) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

// Analyze summarises a step response trace.
//
// Difference is the peak overshoot above the ground state; Ratio is the
// decay between the first two overshoot peaks (0 when there is at most
// one); Phase is the angle of the final state in the normalised phase
// plane.
func Analyze(tr Trace, omega float64) wire.TrinityData {
	data := wire.TrinityData{GroundState: GroundState}
	if tr.Len() == 0 {
		data.Stability = 1.0
		return data
	}

	stab := NewStability(SettleBand * GroundState)
	var peaks []float64
	maxPos := tr.Pos[0]
	for i, p := range tr.Pos {
		stab.Observe(p)
		if p > maxPos {
			maxPos = p
		}
		if i > 0 && i < tr.Len()-1 && p > GroundState && p >= tr.Pos[i-1] && p > tr.Pos[i+1] {
			peaks = append(peaks, p-GroundState)
		}
	}

	data.Difference = math.Max(0, maxPos-GroundState)
	if len(peaks) >= 2 && peaks[0] > 0 {
		data.Ratio = peaks[1] / peaks[0]
	}
	last := tr.Len() - 1
	data.Phase = math.Atan2(tr.Vel[last]/omega, tr.Pos[last]-GroundState)
	data.Stability = stab.Value()
	return data
}
