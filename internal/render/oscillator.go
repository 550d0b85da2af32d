package render

import "math"

const (
	DefaultStiffness = 4 * math.Pi * math.Pi
	DefaultMass      = 1.0
	GroundState      = 1.0
)

// System is an ODE dX/dt = f(X, t).
type System interface {
	Derive(x []float64, t float64) []float64
	StateDim() int
}

// Oscillator is a unit step driven spring-mass with damping ratio Zeta.
// State is [position, velocity].
type Oscillator struct {
	Mass      float64
	Stiffness float64
	Zeta      float64
}

func NewOscillator(zeta float64) *Oscillator {
	return &Oscillator{Mass: DefaultMass, Stiffness: DefaultStiffness, Zeta: zeta}
}

func (o *Oscillator) StateDim() int { return 2 }

// NaturalFrequency returns sqrt(k/m) in rad/s.
func (o *Oscillator) NaturalFrequency() float64 { return math.Sqrt(o.Stiffness / o.Mass) }

func (o *Oscillator) Derive(x []float64, t float64) []float64 {
	pos, vel := x[0], x[1]
	c := 2 * o.Zeta * math.Sqrt(o.Stiffness*o.Mass)
	force := -o.Stiffness*(pos-GroundState) - c*vel
	return []float64{vel, force / o.Mass}
}

func (o *Oscillator) Energy(x []float64) float64 {
	d := x[0] - GroundState
	return 0.5*o.Mass*x[1]*x[1] + 0.5*o.Stiffness*d*d
}

type RK4 struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func NewRK4() *RK4 { return &RK4{} }

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make([]float64, n)
		r.k2 = make([]float64, n)
		r.k3 = make([]float64, n)
		r.k4 = make([]float64, n)
		r.scratch = make([]float64, n)
	}
}

func (r *RK4) Step(dyn System, x []float64, t, dt float64) []float64 {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, dyn.Derive(x, t))
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, dyn.Derive(r.scratch, t+dt*0.5))
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, dyn.Derive(r.scratch, t+dt*0.5))
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, dyn.Derive(r.scratch, t+dt))

	result := make([]float64, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result
}

// Trace is a sampled trajectory.
type Trace struct {
	Times []float64
	Pos   []float64
	Vel   []float64
}

func (t Trace) Len() int { return len(t.Times) }

type SimConfig struct {
	Dt       float64
	Duration float64
}

func DefaultSimConfig() SimConfig {
	return SimConfig{Dt: 0.01, Duration: 8.0}
}

// Simulate integrates the step response of an oscillator with damping
// ratio zeta, starting at rest at the origin.
func Simulate(zeta float64, cfg SimConfig) Trace {
	osc := NewOscillator(zeta)
	integ := NewRK4()
	steps := int(cfg.Duration/cfg.Dt) + 1

	tr := Trace{
		Times: make([]float64, 0, steps),
		Pos:   make([]float64, 0, steps),
		Vel:   make([]float64, 0, steps),
	}
	x := []float64{0, 0}
	for i := 0; i < steps; i++ {
		t := float64(i) * cfg.Dt
		tr.Times = append(tr.Times, t)
		tr.Pos = append(tr.Pos, x[0])
		tr.Vel = append(tr.Vel, x[1])
		x = integ.Step(osc, x, t, cfg.Dt)
	}
	return tr
}
