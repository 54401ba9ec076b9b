package domain

import "time"

// Expectation is the token handed to the external test runner.
type Expectation string

const (
	ShouldSucceed Expectation = "should succeed"
	ShouldFail    Expectation = "should fail"
)

// Action is a lifecycle transition applied before verification.
type Action string

const (
	// ActionStart replaces the instance with a fresh one.
	ActionStart Action = "start"
	// ActionStopDataPlane asks the in-container supervisor to bring the
	// data-plane down while the control-plane keeps running.
	ActionStopDataPlane Action = "stop-data-plane"
)

// Phase is a stage of a verification run.
type Phase string

const (
	PhasePending     Phase = "PENDING"
	PhaseBuilding    Phase = "BUILDING"
	PhaseBaseline    Phase = "BASELINE_VERIFY"
	PhaseHealthCheck Phase = "HEALTHCHECK_SCENARIOS"
	PhaseAuth        Phase = "AUTH_SCENARIOS"
	PhaseTrust       Phase = "TRUST_VERIFY"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

// Transition is one step that brings the instance to a scenario's configuration.
type Transition struct {
	Action Action      `yaml:"action" json:"action"`
	Env    Environment `yaml:"env,omitempty" json:"env,omitempty"`
}

// Scenario is one row of the verification matrix.
type Scenario struct {
	Name        string       `yaml:"name" json:"name"`
	Phase       Phase        `yaml:"phase" json:"phase"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
	Suite       string       `yaml:"suite" json:"suite"`
	Expectation Expectation  `yaml:"expectation" json:"expectation"`
	// Diagnostics dumps instance logs when this verification fails.
	Diagnostics bool `yaml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
}

// VerificationResult records the outcome of one scenario.
type VerificationResult struct {
	Scenario string        `json:"scenario"`
	Passed   bool          `json:"passed"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunStatus is a point-in-time view of a verification run.
type RunStatus struct {
	RunID    string               `json:"run_id"`
	Phase    Phase                `json:"phase"`
	Scenario string               `json:"scenario,omitempty"`
	Started  time.Time            `json:"started"`
	Finished *time.Time           `json:"finished,omitempty"`
	Results  []VerificationResult `json:"results"`
	Instance *Instance            `json:"instance,omitempty"`
	Error    string               `json:"error,omitempty"`
}
