package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
	"github.com/melih/cage-verify/internal/core/ports"
)

// Probe checks one readiness signal of the instance.
type Probe interface {
	Name() string
	Check(ctx context.Context, inst *domain.Instance) error
}

// RunningProbe passes once the container is running. A container that has
// exited will not recover, so that is reported as permanent.
type RunningProbe struct {
	Controller ports.ContainerController
}

func (p RunningProbe) Name() string { return "container running" }

func (p RunningProbe) Check(ctx context.Context, inst *domain.Instance) error {
	state, err := p.Controller.Inspect(ctx, inst)
	if err != nil {
		return err
	}
	switch state {
	case domain.StateRunning:
		return nil
	case domain.StateStarting:
		return errors.New("container is still starting")
	default:
		return backoff.Permanent(fmt.Errorf("container is %s", state))
	}
}

// HTTPProbe passes once URL answers with any HTTP response, whatever the status.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p HTTPProbe) Name() string { return "GET " + p.URL }

func (p HTTPProbe) Check(ctx context.Context, _ *domain.Instance) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// ExecProbe passes once Cmd run inside the instance prints output starting
// with Prefix.
type ExecProbe struct {
	Controller ports.ContainerController
	Cmd        []string
	Prefix     string
}

func (p ExecProbe) Name() string { return strings.Join(p.Cmd, " ") }

func (p ExecProbe) Check(ctx context.Context, inst *domain.Instance) error {
	out, err := p.Controller.ExecInternal(ctx, inst, p.Cmd)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(strings.TrimSpace(out), p.Prefix) {
		return fmt.Errorf("output %q does not start with %q", strings.TrimSpace(out), p.Prefix)
	}
	return nil
}

// Waiter polls probes with exponential backoff until all pass or the
// timeout expires.
type Waiter struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	logger          zerolog.Logger
}

func NewWaiter(logger zerolog.Logger) *Waiter {
	return &Waiter{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		logger:          logger.With().Str("component", "readiness").Logger(),
	}
}

// Await sleeps for settle, then polls probes in order until every one passes.
func (w *Waiter) Await(ctx context.Context, inst *domain.Instance, timeout, settle time.Duration, probes ...Probe) error {
	if settle > 0 {
		t := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.InitialInterval
	b.MaxInterval = w.MaxInterval

	started := time.Now()
	var current string
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		for _, p := range probes {
			current = p.Name()
			if err := p.Check(ctx, inst); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.logger.Debug().Err(err).Str("probe", current).Dur("retry_in", next).Msg("not ready yet")
		}),
	)
	if err != nil {
		return &domain.ReadinessError{Probe: current, Err: err}
	}
	w.logger.Info().Dur("waited", time.Since(started)+settle).Msg("instance ready")
	return nil
}
