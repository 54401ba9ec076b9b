package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/cage-verify/internal/core/domain"
)

type staticReport struct {
	status domain.RunStatus
}

func (r staticReport) Snapshot() domain.RunStatus { return r.status }

type logController struct {
	lines    []string
	err      error
	lastTail int
}

func (c *logController) Start(context.Context, domain.LaunchSpec) (*domain.Instance, error) {
	return nil, errors.New("not supported")
}
func (c *logController) Kill(context.Context, string) error { return nil }
func (c *logController) ExecInternal(context.Context, *domain.Instance, []string) (string, error) {
	return "", nil
}
func (c *logController) Inspect(context.Context, *domain.Instance) (domain.InstanceState, error) {
	return domain.StateRunning, nil
}
func (c *logController) Logs(_ context.Context, _ *domain.Instance, tail int) ([]string, error) {
	c.lastTail = tail
	return c.lines, c.err
}
func (c *logController) Name() string { return "cage-test" }

func running() domain.RunStatus {
	return domain.RunStatus{
		RunID:    "run-1",
		Phase:    domain.PhaseHealthCheck,
		Scenario: "data-plane-down",
		Results:  []domain.VerificationResult{{Scenario: "baseline", Passed: true}},
		Instance: &domain.Instance{Name: "cage-test", State: domain.StateRunning},
	}
}

func TestGetRun(t *testing.T) {
	app := NewApp(NewStatusHandler(staticReport{running()}, &logController{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/run", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var got domain.RunStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.PhaseHealthCheck, got.Phase)
	require.Len(t, got.Results, 1)
	assert.True(t, got.Results[0].Passed)
}

func TestGetInstance(t *testing.T) {
	app := NewApp(NewStatusHandler(staticReport{running()}, &logController{}))
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/instance", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	empty := NewApp(NewStatusHandler(staticReport{domain.RunStatus{RunID: "run-1"}}, &logController{}))
	resp, err = empty.Test(httptest.NewRequest("GET", "/api/v1/instance", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetInstanceLogs(t *testing.T) {
	c := &logController{lines: []string{"boot", "ready"}}
	app := NewApp(NewStatusHandler(staticReport{running()}, c))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/instance/logs?tail=2", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "boot\nready", string(body))
	assert.Equal(t, 2, c.lastTail)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/instance/logs?tail=0", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetInstanceLogs_DaemonError(t *testing.T) {
	c := &logController{err: errors.New("daemon unavailable")}
	app := NewApp(NewStatusHandler(staticReport{running()}, c))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/instance/logs", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, 100, c.lastTail)
}
