// Package render is a reference implementation of the /trinity-viz
// rendering service.
//
// It simulates the step response of a damped spring-mass oscillator for the
// requested damping ratio, summarises it as [wire.TrinityData] and draws the
// trajectory as a PNG. Latency, jitter and failure injection make it useful
// for exercising out-of-order arrival in the panel.
package render
