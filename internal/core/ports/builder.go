package ports

import (
	"context"

	"github.com/melih/cage-verify/internal/core/domain"
)

// BuildRequest describes one image build.
type BuildRequest struct {
	// Context is a local directory or a git URL.
	Context    string
	Dockerfile string
	Tag        string
	// Secrets are injected as build arguments only.
	Secrets map[string]string
}

// BuilderService defines operations for building the cage image.
type BuilderService interface {
	// BuildImage builds the image described by req and returns it, or a
	// *domain.BuildError.
	BuildImage(ctx context.Context, req BuildRequest) (domain.Image, error)
}
