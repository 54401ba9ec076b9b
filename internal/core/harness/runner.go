// Package harness drives the cage through its verification matrix.
//
// A run is a fixed pipeline:
//
//	BUILDING -> BASELINE_VERIFY -> HEALTHCHECK_SCENARIOS -> AUTH_SCENARIOS -> TRUST_VERIFY -> DONE
//
// Each scenario in the table brings the instance to its configuration (a
// fresh start or an in-container liveness change), waits for a readiness
// signal, then hands judgement to the external test suite. The first
// unexpected result aborts the run. The reserved container is removed both
// before the first and after the last step, whatever the outcome.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
	"github.com/melih/cage-verify/internal/core/ports"
)

const teardownTimeout = 30 * time.Second

// Options tune a Runner.
type Options struct {
	Build          ports.BuildRequest
	Host           string
	IngressPort    int
	ManagementPort int
	Labels         map[string]string

	StartTimeout time.Duration
	ExecTimeout  time.Duration
	StartSettle  time.Duration
	ExecSettle   time.Duration

	// StopDataPlane is run inside the instance to take the data-plane down.
	StopDataPlane []string
	// DataPlaneStatus prints the supervisor state; DownPrefix marks it stopped.
	DataPlaneStatus []string
	DownPrefix      string
}

// DefaultOptions returns options for the runit-supervised cage.
func DefaultOptions() Options {
	return Options{
		Host:            "localhost",
		IngressPort:     443,
		ManagementPort:  3032,
		StartTimeout:    60 * time.Second,
		ExecTimeout:     15 * time.Second,
		StopDataPlane:   []string{"sv", "down", "data-plane"},
		DataPlaneStatus: []string{"sv", "status", "data-plane"},
		DownPrefix:      "down:",
	}
}

// SecretSource yields the build secrets; it must not return until they are final.
type SecretSource interface {
	Secrets(ctx context.Context) (map[string]string, error)
}

// Runner executes a scenario table against the cage.
type Runner struct {
	opts        Options
	scenarios   []domain.Scenario
	secrets     SecretSource
	builder     ports.BuilderService
	controller  ports.ContainerController
	tests       ports.TestRunner
	trust       ports.TrustVerifier
	waiter      *Waiter
	diagnostics *Diagnostics
	report      *Report
	logger      zerolog.Logger
	now         func() time.Time
}

// Deps groups the collaborators of a Runner.
type Deps struct {
	Secrets     SecretSource
	Builder     ports.BuilderService
	Controller  ports.ContainerController
	Tests       ports.TestRunner
	Trust       ports.TrustVerifier
	Waiter      *Waiter
	Diagnostics *Diagnostics
	Report      *Report
}

func NewRunner(opts Options, scenarios []domain.Scenario, deps Deps, logger zerolog.Logger) (*Runner, error) {
	if err := ValidateScenarios(scenarios); err != nil {
		return nil, err
	}
	if deps.Report == nil {
		deps.Report = NewReport("")
	}
	if deps.Waiter == nil {
		deps.Waiter = NewWaiter(logger)
	}
	return &Runner{
		opts:        opts,
		scenarios:   scenarios,
		secrets:     deps.Secrets,
		builder:     deps.Builder,
		controller:  deps.Controller,
		tests:       deps.Tests,
		trust:       deps.Trust,
		waiter:      deps.Waiter,
		diagnostics: deps.Diagnostics,
		report:      deps.Report,
		logger:      logger.With().Str("component", "runner").Logger(),
		now:         time.Now,
	}, nil
}

// Report exposes the run progress.
func (r *Runner) Report() *Report { return r.report }

// Run executes the whole pipeline. Any error aborts the run.
func (r *Runner) Run(ctx context.Context) (err error) {
	r.report.start(r.now())
	defer func() {
		if tdErr := r.teardown(ctx); tdErr != nil {
			err = errors.Join(err, tdErr)
		}
		r.report.finish(r.now(), err)
		if err != nil {
			r.logger.Error().Err(err).Msg("verification run failed")
			return
		}
		r.logger.Info().Int("scenarios", len(r.scenarios)).Msg("verification run passed")
	}()

	// A previous run may have been interrupted before its teardown.
	if err := r.controller.Kill(ctx, r.controller.Name()); err != nil {
		return fmt.Errorf("failed to clear previous instance: %w", err)
	}

	r.report.setPhase(domain.PhaseBuilding, "")
	secrets, err := r.secrets.Secrets(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare build secrets: %w", err)
	}
	req := r.opts.Build
	req.Secrets = secrets
	img, err := r.builder.BuildImage(ctx, req)
	if err != nil {
		return err
	}

	var inst *domain.Instance
	for _, sc := range r.scenarios {
		r.report.setPhase(sc.Phase, sc.Name)
		r.logger.Info().Str("phase", string(sc.Phase)).Str("scenario", sc.Name).Msg("running scenario")
		if inst, err = r.runScenario(ctx, img, inst, sc); err != nil {
			return err
		}
	}

	r.report.setPhase(domain.PhaseTrust, "")
	root := []byte(secrets[domain.SecretProvisionerRootCert])
	if err := r.trust.VerifyChain(ctx, r.opts.Host, r.opts.IngressPort, root); err != nil {
		return err
	}
	return nil
}

func (r *Runner) runScenario(ctx context.Context, img domain.Image, inst *domain.Instance, sc domain.Scenario) (*domain.Instance, error) {
	for _, tr := range sc.Transitions {
		var err error
		switch tr.Action {
		case domain.ActionStart:
			inst, err = r.start(ctx, img, tr.Env)
		case domain.ActionStopDataPlane:
			err = r.stopDataPlane(ctx, inst)
		default:
			err = fmt.Errorf("unknown action %q", tr.Action)
		}
		if err != nil {
			return inst, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}

	started := r.now()
	verify := func(ctx context.Context) error {
		out, err := r.tests.Run(ctx, sc.Suite, sc.Expectation)
		res := domain.VerificationResult{
			Scenario: sc.Name,
			Passed:   err == nil,
			Output:   out,
			Duration: r.now().Sub(started),
		}
		r.report.record(res)
		if err != nil {
			return &domain.VerificationError{Scenario: sc.Name, Expectation: sc.Expectation, Output: out, Err: err}
		}
		return nil
	}

	var err error
	if sc.Diagnostics && r.diagnostics != nil {
		err = r.diagnostics.Wrap(ctx, inst, verify)
	} else {
		err = verify(ctx)
	}
	if err != nil {
		return inst, err
	}
	r.logger.Info().Str("scenario", sc.Name).Str("expectation", string(sc.Expectation)).Msg("scenario passed")
	return inst, nil
}

func (r *Runner) start(ctx context.Context, img domain.Image, env domain.Environment) (*domain.Instance, error) {
	inst, err := r.controller.Start(ctx, domain.LaunchSpec{
		Image:  img.Tag,
		Env:    env,
		Ports:  domain.DefaultPorts,
		Labels: r.opts.Labels,
	})
	if err != nil {
		return nil, err
	}
	r.report.setInstance(inst)

	err = r.waiter.Await(ctx, inst, r.opts.StartTimeout, r.opts.StartSettle,
		RunningProbe{Controller: r.controller},
		HTTPProbe{URL: fmt.Sprintf("http://%s:%d/", r.opts.Host, r.opts.ManagementPort)},
	)
	r.report.setInstance(inst)
	return inst, err
}

func (r *Runner) stopDataPlane(ctx context.Context, inst *domain.Instance) error {
	if inst == nil {
		return errors.New("no running instance to stop the data-plane in")
	}
	if _, err := r.controller.ExecInternal(ctx, inst, r.opts.StopDataPlane); err != nil {
		return err
	}
	r.logger.Info().Str("container", inst.Name).Msg("data-plane stopped")
	return r.waiter.Await(ctx, inst, r.opts.ExecTimeout, r.opts.ExecSettle,
		RunningProbe{Controller: r.controller},
		ExecProbe{Controller: r.controller, Cmd: r.opts.DataPlaneStatus, Prefix: r.opts.DownPrefix},
	)
}

// teardown removes the instance even when ctx was cancelled.
func (r *Runner) teardown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := r.controller.Kill(ctx, r.controller.Name()); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	r.report.setInstance(nil)
	return nil
}
