package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/melih/cage-verify/internal/core/domain"
	"github.com/melih/cage-verify/internal/core/ports"
)

// fakeController emulates one named container slot.
type fakeController struct {
	mu        sync.Mutex
	events    []string
	current   *domain.Instance
	dataPlane bool
	seq       int
	startErr  error
	execErr   error
	logs      []string
	logsErr   error
	logCalls  int

	// killCtxErrs holds ctx.Err() as seen by each Kill.
	killCtxErrs []error
}

func (f *fakeController) Name() string { return "cage-test" }

func (f *fakeController) event(format string, args ...any) {
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

func (f *fakeController) Start(_ context.Context, spec domain.LaunchSpec) (*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	if f.startErr != nil {
		return nil, &domain.LaunchError{Name: f.Name(), Err: f.startErr}
	}
	f.seq++
	f.event("start %s", strings.Join(spec.Env.List(), ","))
	f.current = &domain.Instance{
		ID:    strconv.Itoa(f.seq),
		Name:  f.Name(),
		Image: spec.Image,
		Env:   spec.Env,
		Ports: spec.Ports,
		State: domain.StateStarting,
	}
	f.dataPlane = true
	return f.current, nil
}

func (f *fakeController) Kill(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killCtxErrs = append(f.killCtxErrs, ctx.Err())
	f.event("kill %s", name)
	f.current = nil
	return nil
}

func (f *fakeController) ExecInternal(_ context.Context, inst *domain.Instance, cmd []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || f.current.ID != inst.ID {
		return "", &domain.ExecError{Name: f.Name(), Cmd: cmd, Err: errors.New("instance is absent")}
	}
	joined := strings.Join(cmd, " ")
	switch joined {
	case "sv down data-plane":
		f.event("exec %s", joined)
		if f.execErr != nil {
			return "", &domain.ExecError{Name: f.Name(), Cmd: cmd, Err: f.execErr}
		}
		f.dataPlane = false
		return "ok: down: data-plane: 0s\n", nil
	case "sv status data-plane":
		if f.dataPlane {
			return "run: data-plane: (pid 42) 10s\n", nil
		}
		return "down: data-plane: 1s, normally up\n", nil
	}
	return "", nil
}

func (f *fakeController) Inspect(_ context.Context, inst *domain.Instance) (domain.InstanceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || f.current.ID != inst.ID {
		inst.State = domain.StateAbsent
	} else {
		inst.State = domain.StateRunning
	}
	return inst.State, nil
}

func (f *fakeController) Logs(_ context.Context, _ *domain.Instance, tail int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logCalls++
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	if len(f.logs) > tail {
		return f.logs[len(f.logs)-tail:], nil
	}
	return f.logs, nil
}

func (f *fakeController) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

var _ ports.ContainerController = (*fakeController)(nil)

type testCall struct {
	Suite       string
	Expectation domain.Expectation
	Env         string
}

// fakeTests judges expectations against the current fake instance, the way
// the external suite would judge the real cage.
type fakeTests struct {
	controller *fakeController
	calls      []testCall
	failOn     map[int]error

	// onRun is called at the start of every suite run.
	onRun func()
}

func (f *fakeTests) Run(_ context.Context, suite string, expectation domain.Expectation) (string, error) {
	if f.onRun != nil {
		f.onRun()
	}
	f.controller.mu.Lock()
	env := ""
	if f.controller.current != nil {
		env = strings.Join(f.controller.current.Env.List(), ",")
	}
	f.controller.event("verify %s %s", suite, expectation)
	f.controller.mu.Unlock()

	f.calls = append(f.calls, testCall{Suite: suite, Expectation: expectation, Env: env})
	if err := f.failOn[len(f.calls)]; err != nil {
		return "1 failing", err
	}
	return "passing", nil
}

type fakeBuilder struct {
	req ports.BuildRequest
	err error
}

func (f *fakeBuilder) BuildImage(_ context.Context, req ports.BuildRequest) (domain.Image, error) {
	f.req = req
	if f.err != nil {
		return domain.Image{}, &domain.BuildError{Tag: req.Tag, Err: f.err}
	}
	return domain.Image{ID: "sha256:abc", Tag: req.Tag}, nil
}

type fakeTrust struct {
	host   string
	port   int
	rootCA []byte
	err    error
}

func (f *fakeTrust) VerifyChain(_ context.Context, host string, port int, rootCA []byte) error {
	f.host, f.port, f.rootCA = host, port, rootCA
	if f.err != nil {
		return &domain.TrustError{Addr: net.JoinHostPort(host, strconv.Itoa(port)), Err: f.err}
	}
	return nil
}

type staticSecrets map[string]string

func (s staticSecrets) Secrets(context.Context) (map[string]string, error) {
	return map[string]string(s), nil
}

func fastWaiter() *Waiter {
	w := NewWaiter(zerolog.Nop())
	w.InitialInterval = time.Millisecond
	w.MaxInterval = 5 * time.Millisecond
	return w
}

// managementServer stands in for the cage management port.
func managementServer(t *testing.T) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
