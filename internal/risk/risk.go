// Package risk implements the Risk Supervisor (C9, spec §4.9): the
// conjunctive admission gate every Execution must pass before the
// orchestrator (C8) begins building it, plus the kill-switch and the
// per-chain daily Budget the gate consults.
//
// Grounded on internal/breaker's Manager reuse pattern (no hidden
// process-wide state, spec §9) and crypto-wallet's per-chain budget
// bookkeeping idiom.
package risk

import (
	"strconv"
	"sync"
	"time"

	"github.com/flowshift/arbengine/internal/arberr"
	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
)

// Telemetry is the subset of the Telemetry Sink (C10) the Supervisor emits
// breaker events through.
type Telemetry interface {
	BreakerOpened(now time.Time, subject string)
	BreakerClosed(now time.Time, subject string)
}

// Config tunes the Supervisor's admission thresholds, spec §4.9.
type Config struct {
	RevertWindow          time.Duration // default 1h
	MaxRevertsInWindow    int           // default 3
	AdmissionCooldown     time.Duration // default 500ms
	TriggerCooldown       time.Duration // default 5m, deny-all duration on breach
	GasHeadroomMultiplier decimal.Decimal // default 2
}

func DefaultConfig() Config {
	return Config{
		RevertWindow:          time.Hour,
		MaxRevertsInWindow:    3,
		AdmissionCooldown:     500 * time.Millisecond,
		TriggerCooldown:       5 * time.Minute,
		GasHeadroomMultiplier: decimal.NewFromInt(2),
	}
}

// chainState tracks the per-chain bookkeeping admission rule 2-4 consult.
type chainState struct {
	mu             sync.Mutex
	revertTimes    []time.Time
	lastAdmission  time.Time
	deniedUntil    time.Time
	budget         domain.Budget
	dailyCapNative decimal.Decimal
}

// Supervisor is C9.
type Supervisor struct {
	cfg        Config
	breakers   *breaker.Manager
	tel        Telemetry
	log        *logger.Logger

	mu         sync.RWMutex
	killSwitch bool
	chains     map[int64]*chainState
}

func New(cfg Config, breakers *breaker.Manager, tel Telemetry, log *logger.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, breakers: breakers, tel: tel, log: log, chains: make(map[int64]*chainState)}
}

// SetDailyGasBudget configures chainID's per-UTC-day native gas cap, spec
// §6 dailyGasBudgetNative{chain}.
func (s *Supervisor) SetDailyGasBudget(chainID int64, capNative decimal.Decimal) {
	s.chainFor(chainID).dailyCapNative = capNative
}

// SetKillSwitch sets or clears the global kill-switch, spec §6/§4.9 rule 1.
func (s *Supervisor) SetKillSwitch(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitch = on
}

func (s *Supervisor) KillSwitch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killSwitch
}

func (s *Supervisor) chainFor(chainID int64) *chainState {
	s.mu.RLock()
	cs, ok := s.chains[chainID]
	s.mu.RUnlock()
	if ok {
		return cs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok = s.chains[chainID]; ok {
		return cs
	}
	cs = &chainState{}
	s.chains[chainID] = cs
	return cs
}

// Admit evaluates the four conjunctive admission rules for chainID, spec
// §4.9. estimatedGas is the orchestrator's pre-trade gas estimate in
// native units.
func (s *Supervisor) Admit(now time.Time, chainID int64, estimatedGas decimal.Decimal) error {
	if s.KillSwitch() {
		return arberr.New(arberr.OperatorHalt, "kill-switch", nil)
	}

	cs := s.chainFor(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if now.Before(cs.deniedUntil) {
		return arberr.New(arberr.AdmissionDenied, "chain-trigger-cooldown", nil)
	}

	if now.Sub(cs.lastAdmission) < s.cfg.AdmissionCooldown {
		return arberr.New(arberr.AdmissionDenied, "admission-cooldown", nil)
	}

	cs.pruneRevertsLocked(now, s.cfg.RevertWindow)
	if len(cs.revertTimes) >= s.cfg.MaxRevertsInWindow {
		s.triggerLocked(now, cs, "revert-threshold")
		return arberr.New(arberr.AdmissionDenied, "revert-threshold", nil)
	}

	chainBreaker := s.breakers.GetOrCreate(chainBreakerName(chainID), nil)
	if !chainBreaker.Allow(now) {
		return arberr.New(arberr.BreakerOpen, chainBreakerName(chainID), nil)
	}

	if cs.budget.Day != domain.DayKey(now) {
		cs.budget = domain.Budget{ChainID: chainID, Day: domain.DayKey(now)}
	}
	if cs.dailyCapNative.IsPositive() {
		headroom := cs.dailyCapNative.Sub(cs.budget.GasSpentNative)
		required := estimatedGas.Mul(s.cfg.GasHeadroomMultiplier)
		if headroom.LessThan(required) {
			s.triggerLocked(now, cs, "gas-budget-exhausted")
			return arberr.New(arberr.BudgetExhausted, "daily-gas-budget", nil)
		}
	}

	cs.lastAdmission = now
	return nil
}

func (s *Supervisor) triggerLocked(now time.Time, cs *chainState, subject string) {
	cs.deniedUntil = now.Add(s.cfg.TriggerCooldown)
	if s.tel != nil {
		s.tel.BreakerOpened(now, subject)
	}
	if s.log != nil {
		s.log.Warn("risk supervisor triggered", logger.String("subject", subject))
	}
}

func (cs *chainState) pruneRevertsLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := cs.revertTimes[:0]
	for _, t := range cs.revertTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cs.revertTimes = kept
}

// RecordTerminal updates chainID's counters on a terminal Execution, spec
// §4.9 ("on each terminal Execution, update counters").
func (s *Supervisor) RecordTerminal(now time.Time, chainID int64, outcome domain.ExecutionState, gasSpent, realizedMargin decimal.Decimal) {
	cs := s.chainFor(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.budget.Day != domain.DayKey(now) {
		cs.budget = domain.Budget{ChainID: chainID, Day: domain.DayKey(now)}
	}
	cs.budget.GasSpentNative = cs.budget.GasSpentNative.Add(gasSpent)
	cs.budget.TradesSubmitted++
	cs.budget.RealizedMarginSum = cs.budget.RealizedMarginSum.Add(realizedMargin)

	chainBreaker := s.breakers.GetOrCreate(chainBreakerName(chainID), nil)
	if outcome == domain.StateReverted {
		cs.revertTimes = append(cs.revertTimes, now)
		chainBreaker.RecordFailure(now)
		if chainBreaker.IsOpen() && s.tel != nil {
			s.tel.BreakerOpened(now, chainBreakerName(chainID))
		}
	} else if outcome == domain.StateSucceeded {
		chainBreaker.RecordSuccess(now)
	}
}

func chainBreakerName(chainID int64) string {
	return "chain-" + strconv.FormatInt(chainID, 10)
}

// BudgetSnapshot returns a copy of chainID's current-day Budget.
func (s *Supervisor) BudgetSnapshot(chainID int64) domain.Budget {
	cs := s.chainFor(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.budget
}
