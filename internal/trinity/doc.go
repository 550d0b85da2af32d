// Package trinity implements the parameter-selection-and-fetch controller
// behind the Trinity Dynamics panel.
//
// The package is made of four pieces:
//
//   - [Params]: the selected preset or custom damping value
//   - [Dispatcher]: sequences requests and discards stale completions
//   - [Sink]: the display the dispatcher writes into
//   - [Controller]: joins Params and Dispatcher so every committed change
//     dispatches exactly once
//
// # Example
//
//	d := trinity.NewDispatcher(fetcher, sink)
//	ctrl := trinity.NewController(d)
//	flight, err := ctrl.SelectPreset(trinity.Stable)
//	if err == nil && flight != nil {
//	    go func() { completions <- flight.Run() }()
//	}
//	// later, on the same goroutine that called SelectPreset:
//	ctrl.Complete(<-completions)
//
// # Thread Safety
//
// Params, Dispatcher and Controller are NOT thread-safe. They are owned by
// a single event-loop goroutine. Only [Flight.Run] may be called from
// another goroutine.
package trinity
