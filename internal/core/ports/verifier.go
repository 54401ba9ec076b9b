package ports

import (
	"context"

	"github.com/melih/cage-verify/internal/core/domain"
)

// TestRunner invokes the external assertion suite against the running instance.
// A nil error means the suite accepted the expectation.
type TestRunner interface {
	Run(ctx context.Context, suite string, expectation domain.Expectation) (string, error)
}

// TrustVerifier confirms the ingress certificate chain validates against rootCA.
type TrustVerifier interface {
	VerifyChain(ctx context.Context, host string, port int, rootCA []byte) error
}
