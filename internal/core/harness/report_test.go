package harness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/melih/cage-verify/internal/core/domain"
)

func TestReport_SnapshotIsACopy(t *testing.T) {
	r := NewReport("run-1")
	r.start(time.Unix(0, 0))
	r.setPhase(domain.PhaseBaseline, "baseline")
	r.setInstance(&domain.Instance{Name: "cage-test", State: domain.StateRunning})
	r.record(domain.VerificationResult{Scenario: "baseline", Passed: true})

	snap := r.Snapshot()
	snap.Results[0].Passed = false
	snap.Instance.State = domain.StateStopped

	again := r.Snapshot()
	assert.True(t, again.Results[0].Passed)
	assert.Equal(t, domain.StateRunning, again.Instance.State)
	assert.Equal(t, "baseline", again.Scenario)
}

func TestReport_Finish(t *testing.T) {
	r := NewReport("run-1")
	assert.Equal(t, domain.PhasePending, r.Snapshot().Phase)
	assert.NotNil(t, r.Snapshot().Results)

	r.setPhase(domain.PhaseAuth, "no-auth")
	r.finish(time.Unix(10, 0), errors.New("boom"))
	snap := r.Snapshot()
	assert.Equal(t, domain.PhaseFailed, snap.Phase)
	assert.Equal(t, "no-auth", snap.Scenario)
	assert.Equal(t, "boom", snap.Error)
	assert.NotNil(t, snap.Finished)
}
