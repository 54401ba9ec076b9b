package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/melih/cage-verify/internal/certs"
	"github.com/melih/cage-verify/internal/core/domain"
)

// Preparation produces the build secrets. Outside CI it generates local
// certificates and builds the mock crypto helper concurrently; both tasks
// are joined before Secrets returns, so nothing downstream can observe
// half-written output.
type Preparation struct {
	CI       bool
	CertsDir string
	Hosts    []string
	// Provided replaces the generated certificates only when it holds every
	// secret.
	Provided map[string]string
	// MockBuild compiles the mock crypto helper. Optional.
	MockBuild func(ctx context.Context) error

	logger zerolog.Logger
}

func NewPreparation(ci bool, certsDir string, provided map[string]string, logger zerolog.Logger) *Preparation {
	return &Preparation{
		CI:       ci,
		CertsDir: certsDir,
		Provided: provided,
		logger:   logger.With().Str("component", "prepare").Logger(),
	}
}

// Secrets returns the complete set of build secrets.
func (p *Preparation) Secrets(ctx context.Context) (map[string]string, error) {
	if p.CI {
		if missing := missingSecrets(p.Provided); len(missing) > 0 {
			return nil, fmt.Errorf("CI run is missing build secrets: %s", strings.Join(missing, ", "))
		}
		p.logger.Info().Msg("CI run, using provisioned build secrets")
		return copySecrets(p.Provided), nil
	}

	// A partial set would pair keys with certificates from another bundle.
	complete := len(missingSecrets(p.Provided)) == 0
	if !complete && len(p.Provided) > 0 {
		p.logger.Warn().
			Strs("ignored", providedNames(p.Provided)).
			Msg("incomplete build secrets in environment, using generated certificates")
	}

	var bundle *certs.Bundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if complete {
			return nil
		}
		b, err := certs.Generate(p.Hosts)
		if err != nil {
			return err
		}
		if p.CertsDir != "" {
			if err := b.WriteDir(p.CertsDir); err != nil {
				return err
			}
		}
		bundle = b
		p.logger.Info().Str("dir", p.CertsDir).Msg("local test certificates generated")
		return nil
	})
	if p.MockBuild != nil {
		g.Go(func() error {
			if err := p.MockBuild(gctx); err != nil {
				return fmt.Errorf("failed to build mock crypto helper: %w", err)
			}
			p.logger.Info().Msg("mock crypto helper built")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if complete {
		p.logger.Info().Msg("using build secrets from environment")
		return copySecrets(p.Provided), nil
	}
	return bundle.Secrets(), nil
}

func providedNames(secrets map[string]string) []string {
	var names []string
	for _, name := range domain.SecretNames {
		if secrets[name] != "" {
			names = append(names, name)
		}
	}
	return names
}

func missingSecrets(secrets map[string]string) []string {
	var missing []string
	for _, name := range domain.SecretNames {
		if secrets[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func copySecrets(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
