package ports

import (
	"context"

	"github.com/melih/cage-verify/internal/core/domain"
)

// ContainerController manages the lifecycle of the one named cage instance.
// This interface keeps the scenario driver independent of the Docker SDK.
type ContainerController interface {
	// Start removes any prior instance of the reserved name, then launches a new one.
	Start(ctx context.Context, spec domain.LaunchSpec) (*domain.Instance, error)
	// Kill forcibly removes the named instance. An absent instance is not an error.
	Kill(ctx context.Context, name string) error
	ExecInternal(ctx context.Context, inst *domain.Instance, cmd []string) (string, error)
	Inspect(ctx context.Context, inst *domain.Instance) (domain.InstanceState, error)
	Logs(ctx context.Context, inst *domain.Instance, tail int) ([]string, error)
	Name() string
}
