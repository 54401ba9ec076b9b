// Package testrunner invokes the external assertion suite that judges the cage.
package testrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
	"mvdan.cc/sh/v3/shell"

	"github.com/melih/cage-verify/internal/core/domain"
)

// Command runs a configured command line with the suite and expectation appended.
type Command struct {
	argv   []string
	dir    string
	env    []string
	logger zerolog.Logger
}

// NewCommand parses commandLine with POSIX shell rules. Variables are expanded
// from the process environment.
func NewCommand(commandLine, dir string, logger zerolog.Logger) (*Command, error) {
	argv, err := shell.Fields(commandLine, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to parse test command %q: %w", commandLine, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("test command is empty")
	}
	return &Command{
		argv:   argv,
		dir:    dir,
		env:    os.Environ(),
		logger: logger.With().Str("component", "testrunner").Logger(),
	}, nil
}

// Run executes the suite. The returned output is the combined stdout and
// stderr; a non-zero exit is returned as an error alongside it.
func (c *Command) Run(ctx context.Context, suite string, expectation domain.Expectation) (string, error) {
	args := append(append([]string{}, c.argv[1:]...), suite, string(expectation))
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	cmd.Dir = c.dir
	cmd.Env = append(append([]string{}, c.env...),
		"CAGE_SUITE="+suite,
		"CAGE_EXPECTATION="+string(expectation),
	)

	var out bytes.Buffer
	var w io.Writer = &out
	if c.logger.GetLevel() <= zerolog.DebugLevel {
		w = io.MultiWriter(&out, c.logger.With().Str("suite", suite).Logger())
	}
	cmd.Stdout = w
	cmd.Stderr = w

	c.logger.Info().Str("suite", suite).Str("expectation", string(expectation)).Msg("running test suite")
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("test suite %s exited: %w", suite, err)
	}
	return out.String(), nil
}

// Exec runs the command line as configured, without suite arguments.
func (c *Command) Exec(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Dir = c.dir
	cmd.Env = c.env

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.logger.Info().Strs("argv", c.argv).Msg("running command")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %s failed: %w: %s", c.argv[0], err, bytes.TrimSpace(out.Bytes()))
	}
	return nil
}
