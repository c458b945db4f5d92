package risk

import (
	"testing"
	"time"

	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor() *Supervisor {
	cfg := DefaultConfig()
	cfg.AdmissionCooldown = 0
	return New(cfg, breaker.NewManager(nil), nil, nil)
}

func TestAdmit_DeniesWhenKillSwitchSet(t *testing.T) {
	s := newTestSupervisor()
	s.SetKillSwitch(true)
	err := s.Admit(time.Now(), 1, decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestAdmit_DeniesAfterRevertThreshold(t *testing.T) {
	s := newTestSupervisor()
	now := time.Now()
	for i := 0; i < 3; i++ {
		s.RecordTerminal(now, 1, domain.StateReverted, decimal.NewFromInt(1), decimal.Zero)
	}
	err := s.Admit(now, 1, decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestAdmit_AllowsBelowRevertThreshold(t *testing.T) {
	s := newTestSupervisor()
	now := time.Now()
	s.RecordTerminal(now, 1, domain.StateReverted, decimal.NewFromInt(1), decimal.Zero)
	err := s.Admit(now, 1, decimal.NewFromInt(1))
	assert.NoError(t, err)
}

func TestAdmit_DeniesWhenGasBudgetExhausted(t *testing.T) {
	s := newTestSupervisor()
	now := time.Now()
	s.SetDailyGasBudget(1, decimal.NewFromInt(100))
	s.RecordTerminal(now, 1, domain.StateSucceeded, decimal.NewFromInt(95), decimal.NewFromInt(10))

	err := s.Admit(now, 1, decimal.NewFromInt(10)) // needs 2x headroom = 20, only 5 left
	assert.Error(t, err)
}

func TestAdmit_RevertsOldEnoughAreNotCounted(t *testing.T) {
	s := newTestSupervisor()
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	for i := 0; i < 3; i++ {
		s.RecordTerminal(old, 1, domain.StateReverted, decimal.NewFromInt(1), decimal.Zero)
	}
	err := s.Admit(now, 1, decimal.NewFromInt(1))
	require.NoError(t, err, "reverts outside the sliding window must not count toward the threshold")
}
