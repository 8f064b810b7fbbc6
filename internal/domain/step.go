package domain

import "time"

// Outcome classifies what a bootstrap step did to the host.
type Outcome string

const (
	OutcomeChanged   Outcome = "changed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDegraded  Outcome = "degraded" // best-effort work failed, run continues
	OutcomeFailed    Outcome = "failed"   // fatal, the run stopped here
)

// Step names, in execution order.
const (
	StepDisk       = "disk"
	StepProxy      = "proxy-config"
	StepNetwork    = "network"
	StepRegistry   = "registry-login"
	StepImages     = "image-prefetch"
	StepUnits      = "unit-synthesis"
	StepActivation = "activation"
)

// StepResult is the report entry for one bootstrap step.
type StepResult struct {
	Step     string
	Outcome  Outcome
	Details  []string
	Duration time.Duration
}

// Add appends a detail line and returns the result for chaining.
func (r *StepResult) Add(detail string) *StepResult {
	r.Details = append(r.Details, detail)
	return r
}

// MarkChanged upgrades an unchanged result to changed.
// Degraded and skipped outcomes are kept.
func (r *StepResult) MarkChanged() {
	if r.Outcome == "" || r.Outcome == OutcomeUnchanged {
		r.Outcome = OutcomeChanged
	}
}

// Degrade marks the step degraded and records why.
func (r *StepResult) Degrade(detail string) {
	r.Outcome = OutcomeDegraded
	r.Add(detail)
}

// Finish defaults an untouched result to unchanged.
func (r *StepResult) Finish() {
	if r.Outcome == "" {
		r.Outcome = OutcomeUnchanged
	}
}

// Report collects the results of one run.
type Report struct {
	RunID   string
	Steps   []StepResult
	Started time.Time
	Elapsed time.Duration
}

// Failed reports whether the run stopped on a fatal step.
func (r Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Degraded reports whether any step degraded.
func (r Report) Degraded() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeDegraded {
			return true
		}
	}
	return false
}
