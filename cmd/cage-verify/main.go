package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/melih/cage-verify/internal/adapters/builder"
	"github.com/melih/cage-verify/internal/adapters/docker"
	"github.com/melih/cage-verify/internal/adapters/http"
	"github.com/melih/cage-verify/internal/adapters/testrunner"
	"github.com/melih/cage-verify/internal/adapters/tlscheck"
	"github.com/melih/cage-verify/internal/config"
	"github.com/melih/cage-verify/internal/core/domain"
	"github.com/melih/cage-verify/internal/core/harness"
	"github.com/melih/cage-verify/internal/core/ports"
)

func main() {
	root := &cobra.Command{
		Use:           "cage-verify",
		Short:         "Build the cage image and verify it against the scenario matrix",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// loggedError marks a failure the run has already written to its log.
type loggedError struct{ error }

func (e loggedError) Unwrap() error { return e.error }

// printError reports failures that happened outside the run log, such as
// configuration errors before the logger exists.
func printError(w io.Writer, err error) {
	var logged loggedError
	if errors.As(err, &logged) {
		return
	}
	fmt.Fprintln(w, "cage-verify:", err)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.LogLevel).
		With().Timestamp().Logger()

	runID := uuid.NewString()
	logger = logger.With().Str("run", runID).Logger()

	// 1. Initialize Adapters (Infrastructure)
	controller, err := docker.NewAdapter(cfg.ContainerName, logger)
	if err != nil {
		return err
	}
	imageBuilder, err := builder.NewBuilderAdapter(logger)
	if err != nil {
		return err
	}
	suite, err := testrunner.NewCommand(cfg.TestCommand, cfg.TestDir, logger)
	if err != nil {
		return err
	}
	trust := tlscheck.NewVerifier(cfg.TLSServerName, logger)

	prep := harness.NewPreparation(cfg.CI, cfg.CertsDir, cfg.Secrets, logger)
	prep.Hosts = certHosts(cfg.Host)
	if cfg.MockBuildCommand != "" {
		mock, err := testrunner.NewCommand(cfg.MockBuildCommand, "", logger)
		if err != nil {
			return err
		}
		prep.MockBuild = mock.Exec
	}

	// 2. Scenario table
	scenarios := harness.DefaultScenarios()
	if cfg.ScenarioFile != "" {
		if scenarios, err = harness.LoadScenarios(cfg.ScenarioFile); err != nil {
			return err
		}
	}

	opts := harness.DefaultOptions()
	opts.Build = ports.BuildRequest{
		Context:    cfg.BuildContext,
		Dockerfile: cfg.Dockerfile,
		Tag:        cfg.ImageTag,
	}
	opts.Host = cfg.Host
	opts.Labels = map[string]string{"cage-verify.run": runID}
	opts.StartTimeout = cfg.StartTimeout
	opts.ExecTimeout = cfg.ExecTimeout
	opts.StartSettle = cfg.StartSettle
	opts.ExecSettle = cfg.ExecSettle

	report := harness.NewReport(runID)
	runner, err := harness.NewRunner(opts, scenarios, harness.Deps{
		Secrets:     prep,
		Builder:     imageBuilder,
		Controller:  controller,
		Tests:       suite,
		Trust:       trust,
		Waiter:      harness.NewWaiter(logger),
		Diagnostics: harness.NewDiagnostics(controller, cfg.DiagnosticLines, logger),
		Report:      report,
	}, logger)
	if err != nil {
		return err
	}

	// 3. Optional status server
	if cfg.StatusAddr != "" {
		app := http.NewApp(http.NewStatusHandler(report, controller))
		go func() {
			logger.Info().Str("addr", cfg.StatusAddr).Msg("status server listening")
			if err := app.Listen(cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status server failed")
			}
		}()
		defer func() {
			if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
				logger.Warn().Err(err).Msg("status server shutdown")
			}
		}()
	}

	err = runner.Run(ctx)
	summarize(logger, report.Snapshot())
	if err != nil {
		return loggedError{err}
	}
	return nil
}

func certHosts(host string) []string {
	hosts := []string{"localhost", "127.0.0.1"}
	if host != "" && host != "localhost" && host != "127.0.0.1" {
		hosts = append(hosts, host)
	}
	return hosts
}

func summarize(logger zerolog.Logger, status domain.RunStatus) {
	for _, res := range status.Results {
		ev := logger.Info()
		if !res.Passed {
			ev = logger.Error()
		}
		ev.Str("scenario", res.Scenario).Bool("passed", res.Passed).Dur("took", res.Duration).Msg("result")
	}

	if status.Phase == domain.PhaseDone {
		logger.Info().Int("scenarios", len(status.Results)).Msg("cage verified")
		return
	}
	logger.Error().Str("scenario", status.Scenario).Msg("cage verification failed")
}
