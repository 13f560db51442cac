package agent

// Step is one sub-goal of a multi-step plan.
type Step struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Plan is an ordered sequence of steps with a cursor and an approval flag.
// The loop executes one sub-turn per step once the plan is approved.
type Plan struct {
	Steps    []Step `json:"steps"`
	Current  int    `json:"current_step_idx"`
	Approved bool   `json:"approved"`
}

// NewPlan builds an unapproved plan from step descriptions.
func NewPlan(descriptions []string) *Plan {
	steps := make([]Step, 0, len(descriptions))
	for _, d := range descriptions {
		steps = append(steps, Step{Description: d})
	}
	return &Plan{Steps: steps}
}

// MarkCurrentComplete marks the step at the cursor done and advances it.
func (p *Plan) MarkCurrentComplete() {
	if p.Current < len(p.Steps) {
		p.Steps[p.Current].Completed = true
		p.Current++
	}
}

// IsComplete reports whether the cursor has passed the last step.
func (p *Plan) IsComplete() bool {
	return p.Current >= len(p.Steps)
}

// CurrentStep returns the step at the cursor, or nil when the plan is done.
func (p *Plan) CurrentStep() *Step {
	if p.Current < len(p.Steps) {
		return &p.Steps[p.Current]
	}
	return nil
}
