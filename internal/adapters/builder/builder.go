package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
	"github.com/melih/cage-verify/internal/core/ports"
)

type imageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

var _ imageBuilder = (*client.Client)(nil)

type Adapter struct {
	cli    imageBuilder
	logger zerolog.Logger
	// clone fetches a remote context into dir.
	clone func(ctx context.Context, url, dir string) error
}

func NewBuilderAdapter(logger zerolog.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, logger), nil
}

func newAdapter(cli imageBuilder, logger zerolog.Logger) *Adapter {
	a := &Adapter{cli: cli, logger: logger.With().Str("component", "builder").Logger()}
	a.clone = a.gitClone
	return a
}

// BuildImage builds the cage image. A git URL context is shallow cloned first.
func (a *Adapter) BuildImage(ctx context.Context, req ports.BuildRequest) (domain.Image, error) {
	fail := func(err error) (domain.Image, error) {
		return domain.Image{}, &domain.BuildError{Tag: req.Tag, Err: err}
	}

	dir := req.Context
	if isRemote(dir) {
		// 1. Create temporary directory
		tmpDir, err := os.MkdirTemp("", "cage-verify-build-*")
		if err != nil {
			return fail(fmt.Errorf("failed to create temp dir: %w", err))
		}
		defer os.RemoveAll(tmpDir)

		// 2. Clone Repository
		if err := a.clone(ctx, req.Context, tmpDir); err != nil {
			return fail(fmt.Errorf("failed to clone repo: %w", err))
		}
		dir = tmpDir
	}

	// 3. Create Build Context (Tar)
	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return fail(fmt.Errorf("failed to create build context: %w", err))
	}
	defer tar.Close()

	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	// Secret values go to the daemon only; the log carries their names.
	a.logger.Info().
		Str("tag", req.Tag).
		Str("context", req.Context).
		Strs("build_args", secretNames(req.Secrets)).
		Msg("building image")

	// 4. Build Docker Image
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:        []string{req.Tag},
		Dockerfile:  dockerfile,
		BuildArgs:   buildArgs(req.Secrets),
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to build image: %w", err))
	}
	defer resp.Body.Close()

	// Drain the stream; an error message in it means the build failed.
	var imageID string
	out := io.Discard
	if a.logger.GetLevel() <= zerolog.DebugLevel {
		out = a.logger.With().Str("stream", "build").Logger()
	}
	err = jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, func(msg jsonmessage.JSONMessage) {
		var aux types.BuildResult
		if msg.Aux != nil && json.Unmarshal(*msg.Aux, &aux) == nil && aux.ID != "" {
			imageID = aux.ID
		}
	})
	if err != nil {
		return fail(err)
	}

	a.logger.Info().Str("tag", req.Tag).Str("id", imageID).Msg("image built")
	return domain.Image{ID: imageID, Tag: req.Tag}, nil
}

func (a *Adapter) gitClone(ctx context.Context, url, dir string) error {
	a.logger.Info().Str("repo", url).Str("dir", dir).Msg("cloning build context")
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   url,
		Depth: 1, // Shallow clone for speed
	})
	return err
}

func isRemote(ref string) bool {
	for _, prefix := range []string{"https://", "http://", "git@", "ssh://", "git://"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return strings.HasSuffix(ref, ".git")
}

func buildArgs(secrets map[string]string) map[string]*string {
	args := make(map[string]*string, len(secrets))
	for k, v := range secrets {
		args[k] = &v
	}
	return args
}

func secretNames(secrets map[string]string) []string {
	names := make([]string, 0, len(secrets))
	for k := range secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
