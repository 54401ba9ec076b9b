package docker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
)

// engine is the subset of the Docker Engine API the controller uses.
type engine interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, id string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerExecCreate(ctx context.Context, id string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

var _ engine = (*client.Client)(nil)

// Adapter implements ports.ContainerController using Docker SDK.
type Adapter struct {
	cli    engine
	name   string
	logger zerolog.Logger
}

// NewAdapter creates a Docker adapter that owns the container called name.
func NewAdapter(name string, logger zerolog.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, name, logger), nil
}

func newAdapter(cli engine, name string, logger zerolog.Logger) *Adapter {
	return &Adapter{
		cli:    cli,
		name:   name,
		logger: logger.With().Str("component", "container").Str("container", name).Logger(),
	}
}

// Name returns the reserved container name.
func (a *Adapter) Name() string { return a.name }

// Start replaces any existing instance with a fresh detached one.
func (a *Adapter) Start(ctx context.Context, spec domain.LaunchSpec) (*domain.Instance, error) {
	if err := spec.Env.Validate(); err != nil {
		return nil, &domain.LaunchError{Name: a.name, Err: err}
	}

	// 1. Only one instance of the name may exist.
	if err := a.Kill(ctx, a.name); err != nil {
		return nil, &domain.LaunchError{Name: a.name, Err: err}
	}

	ports := spec.Ports
	if len(ports) == 0 {
		ports = domain.DefaultPorts
	}
	exposed, bindings, err := portMaps(ports)
	if err != nil {
		return nil, &domain.LaunchError{Name: a.name, Err: err}
	}

	// 2. Create Container
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Env:          spec.Env.List(),
		ExposedPorts: exposed,
		Labels:       spec.Labels,
	}, &container.HostConfig{
		PortBindings: bindings,
	}, nil, nil, a.name)
	if err != nil {
		return nil, &domain.LaunchError{Name: a.name, Err: fmt.Errorf("failed to create container: %w", err)}
	}

	inst := &domain.Instance{
		ID:     resp.ID,
		Name:   a.name,
		Image:  spec.Image,
		Env:    spec.Env,
		Ports:  ports,
		State:  domain.StateStarting,
		Labels: spec.Labels,
	}

	// 3. Start Container
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, &domain.LaunchError{Name: a.name, Err: fmt.Errorf("failed to start container: %w", err)}
	}
	a.logger.Info().Str("id", shortID(resp.ID)).Strs("env", spec.Env.List()).Msg("instance started")
	return inst, nil
}

// Kill forcibly terminates and removes the named container.
func (a *Adapter) Kill(ctx context.Context, name string) error {
	err := a.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	a.logger.Debug().Msg("instance removed")
	return nil
}

// Inspect reports the current lifecycle state of inst and records it on the handle.
func (a *Adapter) Inspect(ctx context.Context, inst *domain.Instance) (domain.InstanceState, error) {
	info, err := a.cli.ContainerInspect(ctx, inst.ID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			inst.State = domain.StateAbsent
			return inst.State, nil
		}
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	switch {
	case info.ContainerJSONBase == nil || info.State == nil:
		inst.State = domain.StateStarting
	case info.State.Running:
		inst.State = domain.StateRunning
	case info.State.Status == "created":
		inst.State = domain.StateStarting
	default:
		inst.State = domain.StateStopped
	}
	return inst.State, nil
}

// ExecInternal runs cmd inside the instance and returns its combined output.
func (a *Adapter) ExecInternal(ctx context.Context, inst *domain.Instance, cmd []string) (string, error) {
	fail := func(code int, out string, err error) (string, error) {
		return out, &domain.ExecError{Name: a.name, Cmd: cmd, ExitCode: code, Output: out, Err: err}
	}

	state, err := a.Inspect(ctx, inst)
	if err != nil {
		return fail(-1, "", err)
	}
	if state != domain.StateRunning {
		return fail(-1, "", fmt.Errorf("instance is %s", state))
	}

	created, err := a.cli.ContainerExecCreate(ctx, inst.ID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return fail(-1, "", fmt.Errorf("failed to create exec: %w", err))
	}

	attach, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return fail(-1, "", fmt.Errorf("failed to attach exec: %w", err))
	}
	defer attach.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil {
		return fail(-1, out.String(), fmt.Errorf("failed to read exec output: %w", err))
	}

	info, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fail(-1, out.String(), fmt.Errorf("failed to inspect exec: %w", err))
	}
	if info.ExitCode != 0 {
		return fail(info.ExitCode, out.String(), nil)
	}
	a.logger.Debug().Strs("cmd", cmd).Msg("exec finished")
	return out.String(), nil
}

// Logs returns the last tail lines of combined container output, or all of
// it when tail is not positive.
func (a *Adapter) Logs(ctx context.Context, inst *domain.Instance, tail int) ([]string, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Tail:       "all",
	}
	if tail > 0 {
		options.Tail = strconv.Itoa(tail)
	}
	rc, err := a.cli.ContainerLogs(ctx, inst.ID, options)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines, scanner.Err()
}

func portMaps(ports []domain.PortBinding) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", p.ContainerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   p.HostIP,
			HostPort: strconv.Itoa(p.HostPort),
		})
	}
	return exposed, bindings, nil
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
