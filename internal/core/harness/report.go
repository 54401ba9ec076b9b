package harness

import (
	"sync"
	"time"

	"github.com/melih/cage-verify/internal/core/domain"
)

// Report accumulates the progress of one run. It is written by the driver
// and may be read concurrently by the status server.
type Report struct {
	mu     sync.RWMutex
	status domain.RunStatus
}

func NewReport(runID string) *Report {
	return &Report{status: domain.RunStatus{
		RunID:   runID,
		Phase:   domain.PhasePending,
		Results: []domain.VerificationResult{},
	}}
}

func (r *Report) start(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Started = now
}

func (r *Report) setPhase(p domain.Phase, scenario string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Phase = p
	r.status.Scenario = scenario
}

func (r *Report) setInstance(inst *domain.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst == nil {
		r.status.Instance = nil
		return
	}
	cp := *inst
	r.status.Instance = &cp
}

func (r *Report) record(res domain.VerificationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Results = append(r.status.Results, res)
}

func (r *Report) finish(now time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Finished = &now
	if err != nil {
		// Scenario keeps naming the step that failed.
		r.status.Phase = domain.PhaseFailed
		r.status.Error = err.Error()
		return
	}
	r.status.Phase = domain.PhaseDone
	r.status.Scenario = ""
}

// Snapshot returns a copy safe to use after the lock is released.
func (r *Report) Snapshot() domain.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	s.Results = make([]domain.VerificationResult, len(r.status.Results))
	copy(s.Results, r.status.Results)
	if r.status.Instance != nil {
		inst := *r.status.Instance
		s.Instance = &inst
	}
	return s
}
