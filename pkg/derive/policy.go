package derive

import "sync/atomic"

// PolicyConfig is a snapshot of the tunable derivation policy.
type PolicyConfig struct {
	// TriggerEvery runs the batch derivations on every Nth append to a
	// stream. Zero disables the trigger; the sweeps still catch up.
	TriggerEvery int

	// SummaryThreshold is the token count a window must reach before it is
	// summarized.
	SummaryThreshold int

	// SummaryWindow is how many recent entries a summary covers.
	SummaryWindow int

	// TagWindow is how many recent entries the tag pass inspects.
	TagWindow int

	// ToolIterations caps the tool call round trips of one extraction.
	ToolIterations int
}

// DefaultPolicyConfig returns the stock policy.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		TriggerEvery:     10,
		SummaryThreshold: 3000,
		SummaryWindow:    100,
		TagWindow:        20,
		ToolIterations:   4,
	}
}

// Policy holds the derivation policy. It is safe for concurrent use and can
// be updated while derivations run.
type Policy struct {
	triggerEvery     atomic.Int64
	summaryThreshold atomic.Int64
	summaryWindow    atomic.Int64
	tagWindow        atomic.Int64
	toolIterations   atomic.Int64
}

// NewPolicy creates a policy from c.
func NewPolicy(c PolicyConfig) *Policy {
	p := &Policy{}
	p.Update(c)
	return p
}

// Update replaces every value. Non-positive windows and iteration caps keep
// their defaults.
func (p *Policy) Update(c PolicyConfig) {
	d := DefaultPolicyConfig()
	if c.SummaryWindow <= 0 {
		c.SummaryWindow = d.SummaryWindow
	}
	if c.TagWindow <= 0 {
		c.TagWindow = d.TagWindow
	}
	if c.ToolIterations <= 0 {
		c.ToolIterations = d.ToolIterations
	}

	p.SetTriggerEvery(c.TriggerEvery)
	p.SetSummaryThreshold(c.SummaryThreshold)
	p.summaryWindow.Store(int64(c.SummaryWindow))
	p.tagWindow.Store(int64(c.TagWindow))
	p.toolIterations.Store(int64(c.ToolIterations))
}

// Snapshot returns the current values.
func (p *Policy) Snapshot() PolicyConfig {
	return PolicyConfig{
		TriggerEvery:     p.TriggerEvery(),
		SummaryThreshold: p.SummaryThreshold(),
		SummaryWindow:    p.SummaryWindow(),
		TagWindow:        p.TagWindow(),
		ToolIterations:   p.ToolIterations(),
	}
}

func (p *Policy) TriggerEvery() int { return int(p.triggerEvery.Load()) }

// SetTriggerEvery changes the batch trigger. Negative values disable it.
func (p *Policy) SetTriggerEvery(n int) {
	if n < 0 {
		n = 0
	}
	p.triggerEvery.Store(int64(n))
}

func (p *Policy) SummaryThreshold() int { return int(p.summaryThreshold.Load()) }

func (p *Policy) SetSummaryThreshold(n int) {
	if n < 0 {
		n = 0
	}
	p.summaryThreshold.Store(int64(n))
}

func (p *Policy) SummaryWindow() int  { return int(p.summaryWindow.Load()) }
func (p *Policy) TagWindow() int      { return int(p.tagWindow.Load()) }
func (p *Policy) ToolIterations() int { return int(p.toolIterations.Load()) }

// Crossed reports whether growing a stream from before to after live
// entries passed a multiple of TriggerEvery.
func (p *Policy) Crossed(before, after int64) bool {
	n := p.triggerEvery.Load()
	if n <= 0 || after <= before || after <= 0 {
		return false
	}
	if before < 0 {
		before = 0
	}
	return after/n > before/n
}
