package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/melih/cage-verify/internal/core/domain"
)

// Suites understood by the external test runner.
const (
	SuiteHealthCheck = "health-check"
	SuiteAPIKeyAuth  = "api-key-auth"
	SuiteNoAuth      = "no-auth"
)

// DefaultScenarios is the verification matrix, in execution order. Each
// health-check scenario builds on the instance left by the previous one.
func DefaultScenarios() []domain.Scenario {
	return []domain.Scenario{
		{
			Name:  "baseline",
			Phase: domain.PhaseBaseline,
			Transitions: []domain.Transition{
				{Action: domain.ActionStart, Env: domain.Environment{domain.EnvDataPlaneHealthChecks: "true"}},
			},
			Suite:       SuiteHealthCheck,
			Expectation: domain.ShouldSucceed,
			Diagnostics: true,
		},
		{
			Name:        "data-plane-down",
			Phase:       domain.PhaseHealthCheck,
			Transitions: []domain.Transition{{Action: domain.ActionStopDataPlane}},
			Suite:       SuiteHealthCheck,
			Expectation: domain.ShouldFail,
		},
		{
			Name:  "health-checks-disabled",
			Phase: domain.PhaseHealthCheck,
			Transitions: []domain.Transition{
				{Action: domain.ActionStart, Env: domain.Environment{domain.EnvDataPlaneHealthChecks: "false"}},
				{Action: domain.ActionStopDataPlane},
			},
			Suite:       SuiteHealthCheck,
			Expectation: domain.ShouldSucceed,
		},
		{
			Name:  "api-key-auth",
			Phase: domain.PhaseAuth,
			Transitions: []domain.Transition{
				{Action: domain.ActionStart, Env: domain.Environment{domain.EnvAPIKeyAuth: "true"}},
			},
			Suite:       SuiteAPIKeyAuth,
			Expectation: domain.ShouldSucceed,
		},
		{
			Name:  "no-auth",
			Phase: domain.PhaseAuth,
			Transitions: []domain.Transition{
				{Action: domain.ActionStart, Env: domain.Environment{domain.EnvAPIKeyAuth: "false"}},
			},
			Suite:       SuiteNoAuth,
			Expectation: domain.ShouldSucceed,
		},
	}
}

type scenarioFile struct {
	Scenarios []domain.Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a scenario table from a YAML file. Unknown fields are
// rejected so typos do not silently drop a transition.
func LoadScenarios(path string) ([]domain.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var f scenarioFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateScenarios(f.Scenarios); err != nil {
		return nil, fmt.Errorf("invalid scenarios: %w", err)
	}
	return f.Scenarios, nil
}

var phaseOrder = map[domain.Phase]int{
	domain.PhaseBaseline:    1,
	domain.PhaseHealthCheck: 2,
	domain.PhaseAuth:        3,
}

// ValidateScenarios checks a table before anything is started.
func ValidateScenarios(scenarios []domain.Scenario) error {
	if len(scenarios) == 0 {
		return errors.New("at least one scenario is required")
	}

	seen := map[string]bool{}
	last := 0
	for i, s := range scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenarios[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("scenarios[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true

		order, ok := phaseOrder[s.Phase]
		if !ok {
			return fmt.Errorf("scenario %s: unknown phase %q", s.Name, s.Phase)
		}
		if order < last {
			return fmt.Errorf("scenario %s: phase %s cannot follow a later phase", s.Name, s.Phase)
		}
		last = order

		if len(s.Transitions) == 0 {
			return fmt.Errorf("scenario %s: transitions list is required", s.Name)
		}
		for j, tr := range s.Transitions {
			switch tr.Action {
			case domain.ActionStart:
				if err := tr.Env.Validate(); err != nil {
					return fmt.Errorf("scenario %s: transitions[%d]: %w", s.Name, j, err)
				}
			case domain.ActionStopDataPlane:
				if len(tr.Env) > 0 {
					return fmt.Errorf("scenario %s: transitions[%d]: env only applies to %s", s.Name, j, domain.ActionStart)
				}
			default:
				return fmt.Errorf("scenario %s: transitions[%d]: unknown action %q", s.Name, j, tr.Action)
			}
		}
		if i == 0 && s.Transitions[0].Action != domain.ActionStart {
			return fmt.Errorf("scenario %s: the first scenario must start an instance", s.Name)
		}

		if s.Suite == "" {
			return fmt.Errorf("scenario %s: suite is required", s.Name)
		}
		if s.Expectation != domain.ShouldSucceed && s.Expectation != domain.ShouldFail {
			return fmt.Errorf("scenario %s: expectation must be %q or %q", s.Name, domain.ShouldSucceed, domain.ShouldFail)
		}
	}
	return nil
}
