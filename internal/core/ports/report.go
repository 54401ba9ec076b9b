package ports

import "github.com/melih/cage-verify/internal/core/domain"

// RunReporter exposes the progress of the current run.
type RunReporter interface {
	Snapshot() domain.RunStatus
}
