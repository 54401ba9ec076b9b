package domain

import (
	"fmt"
	"strings"
)

// BuildError means the image build failed. Builds are never retried.
type BuildError struct {
	Tag string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of %s failed: %v", e.Tag, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// LaunchError means the runtime refused to start the instance.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecError means a command inside the instance could not run or exited non-zero.
type ExecError struct {
	Name     string
	Cmd      []string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecError) Error() string {
	cmd := strings.Join(e.Cmd, " ")
	if e.Err != nil {
		return fmt.Sprintf("exec %q in %s failed: %v", cmd, e.Name, e.Err)
	}
	return fmt.Sprintf("exec %q in %s exited with code %d", cmd, e.Name, e.ExitCode)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ReadinessError means the instance did not reach the awaited state in time.
type ReadinessError struct {
	Probe string
	Err   error
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("instance not ready (%s): %v", e.Probe, e.Err)
}

func (e *ReadinessError) Unwrap() error { return e.Err }

// VerificationError means observed behaviour did not match the scenario's
// expectation. Logs holds the instance output when diagnostics were collected.
type VerificationError struct {
	Scenario    string
	Expectation Expectation
	Output      string
	Logs        []string
	Err         error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("scenario %s (%s) failed: %v", e.Scenario, e.Expectation, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// TrustError means the ingress certificate chain did not validate against the root.
type TrustError struct {
	Addr string
	Err  error
}

func (e *TrustError) Error() string {
	return fmt.Sprintf("trust verification for %s failed: %v", e.Addr, e.Err)
}

func (e *TrustError) Unwrap() error { return e.Err }
