package trinity

// Controller turns committed user input into exactly one dispatch.
type Controller struct {
	params *Params
	disp   *Dispatcher
}

func NewController(d *Dispatcher) *Controller {
	return &Controller{params: NewParams(), disp: d}
}

// SelectPreset selects name and dispatches it. The flight is nil when
// Custom is selected with no committed value.
func (c *Controller) SelectPreset(name Preset) (*Flight, error) {
	ready, err := c.params.SelectPreset(name)
	if err != nil || !ready {
		return nil, err
	}
	return c.dispatchCurrent()
}

// SetCustomValue commits raw as the custom damping and dispatches it.
// Invalid input returns a *ValidationError and dispatches nothing.
func (c *Controller) SetCustomValue(raw string) (*Flight, error) {
	if err := c.params.SetCustomValue(raw); err != nil {
		return nil, err
	}
	return c.dispatchCurrent()
}

func (c *Controller) dispatchCurrent() (*Flight, error) {
	snap, _ := c.params.Snapshot()
	return c.disp.Dispatch(snap)
}

func (c *Controller) Complete(comp Completion) Outcome { return c.disp.Complete(comp) }

func (c *Controller) Params() *Params { return c.params }

func (c *Controller) Dispatcher() *Dispatcher { return c.disp }

func (c *Controller) Close() { c.disp.Close() }
