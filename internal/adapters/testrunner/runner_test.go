package testrunner

import (
	"context"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/cage-verify/internal/core/domain"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRun_AppendsSuiteAndExpectation(t *testing.T) {
	requireShell(t)
	cmd, err := NewCommand(`sh -c 'echo "$1|$2|$CAGE_SUITE"' runner`, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	out, err := cmd.Run(context.Background(), "health-check", domain.ShouldFail)
	require.NoError(t, err)
	assert.Equal(t, "health-check|should fail|health-check\n", out)
}

func TestRun_NonZeroExitIsFailure(t *testing.T) {
	requireShell(t)
	cmd, err := NewCommand(`sh -c 'echo assertion failed >&2; exit 3' runner`, "", zerolog.Nop())
	require.NoError(t, err)

	out, err := cmd.Run(context.Background(), "api-key-auth", domain.ShouldSucceed)
	require.Error(t, err)
	assert.Contains(t, out, "assertion failed")
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestNewCommand_Invalid(t *testing.T) {
	_, err := NewCommand("", "", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewCommand(`npm run "test`, "", zerolog.Nop())
	assert.Error(t, err)
}

func TestExec(t *testing.T) {
	requireShell(t)
	ok, err := NewCommand(`sh -c 'exit 0'`, "", zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, ok.Exec(context.Background()))

	bad, err := NewCommand(`sh -c 'echo no toolchain; exit 1'`, "", zerolog.Nop())
	require.NoError(t, err)
	err = bad.Exec(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no toolchain")
}
