package harness

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
	"github.com/melih/cage-verify/internal/core/ports"
)

// Diagnostics surfaces recent instance output when a verification step fails.
// It only adds context: the step's error is always returned unchanged.
type Diagnostics struct {
	controller ports.ContainerController
	lines      int
	logger     zerolog.Logger
}

func NewDiagnostics(controller ports.ContainerController, lines int, logger zerolog.Logger) *Diagnostics {
	return &Diagnostics{
		controller: controller,
		lines:      lines,
		logger:     logger.With().Str("component", "diagnostics").Logger(),
	}
}

// Wrap runs step and, if it fails, dumps the last lines of inst's output.
// The lines are attached to a *domain.VerificationError when step returns one.
func (d *Diagnostics) Wrap(ctx context.Context, inst *domain.Instance, step func(context.Context) error) error {
	err := step(ctx)
	if err == nil || inst == nil {
		return err
	}

	lines, logErr := d.controller.Logs(ctx, inst, d.lines)
	if logErr != nil {
		d.logger.Warn().Err(logErr).Msg("could not fetch instance logs")
		return err
	}

	d.logger.Error().Str("container", inst.Name).Int("lines", len(lines)).Msg("verification failed, recent instance output follows")
	for _, line := range lines {
		d.logger.Error().Str("container", inst.Name).Msg(line)
	}

	var verr *domain.VerificationError
	if errors.As(err, &verr) {
		verr.Logs = lines
	}
	return err
}
