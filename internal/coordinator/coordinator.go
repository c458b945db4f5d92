// Package coordinator implements the Market Data Coordinator (C1, spec
// §4.1): a single request surface over N registered information
// providers, with capability filtering, configurable load-balancing
// policy, retry with backoff, non-recursive failover, circuit breaking,
// and background health probing.
//
// Grounded on crypto-wallet/internal/blockchain/rpc/node_manager.go's
// NodeManager/HealthChecker/LoadBalancer triad, generalized from "RPC
// node" to "information provider".
package coordinator

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowshift/arbengine/internal/arberr"
	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/pkg/logger"
)

// Capability is a named ability a provider may advertise.
type Capability string

const (
	CapabilityPricing       Capability = "pricing"
	CapabilityMarketData    Capability = "market-data"
	CapabilityTrending      Capability = "trending"
	CapabilityBlockchainRead Capability = "blockchain-read"
	CapabilityBridges       Capability = "bridges"
)

// Tier is a provider priority tier; lower value is more preferred by the
// "priority" policy.
type Tier int

const (
	TierCritical Tier = iota
	TierHigh
	TierMedium
	TierLow
)

// Policy selects among eligible providers.
type Policy string

const (
	PolicyRoundRobin  Policy = "round-robin"
	PolicyLeastLoaded Policy = "least-loaded"
	PolicyFastest     Policy = "fastest"
	PolicyPriority    Policy = "priority"
	PolicyWeighted    Policy = "weighted"
)

// CallFunc performs one RPC-like call to a provider.
type CallFunc func(ctx context.Context, method string, params interface{}) (interface{}, error)

// ProviderConfig declares a registered information provider, spec §4.1.
type ProviderConfig struct {
	Key            string
	Capabilities   []Capability
	Tier           Tier
	MaxConcurrency int
	Timeout        time.Duration
}

type provider struct {
	cfg      ProviderConfig
	call     CallFunc
	inFlight int64 // atomic

	mu     sync.Mutex
	health domain.ProviderHealth
}

func (p *provider) hasCapability(c Capability) bool {
	for _, pc := range p.cfg.Capabilities {
		if pc == c {
			return true
		}
	}
	return false
}

// Options tunes a single Route call.
type Options struct {
	Retries        int           // R, default 3
	BackoffBase    time.Duration // default 1s
	BackoffCap     time.Duration // default 10s
	FailoverEnabled bool
}

func DefaultOptions() Options {
	return Options{Retries: 3, BackoffBase: time.Second, BackoffCap: 10 * time.Second, FailoverEnabled: true}
}

// Config configures the Coordinator as a whole.
type Config struct {
	Policy                  Policy
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration
	HealthCheckInterval     time.Duration // default 30s
	UnhealthyAfterConsecutiveFailures int // default 3
}

func DefaultConfig() Config {
	return Config{
		Policy:                  PolicyRoundRobin,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  60 * time.Second,
		HealthCheckInterval:     30 * time.Second,
		UnhealthyAfterConsecutiveFailures: 3,
	}
}

// Coordinator is the C1 singleton: constructed once at startup and passed
// by reference into C2 and anywhere else that needs market data.
type Coordinator struct {
	cfg     Config
	log     *logger.Logger
	breakers *breaker.Manager

	mu        sync.RWMutex
	providers map[string]*provider
	cursors   map[Capability]int // round-robin cursor per capability

	rng   *rand.Rand
	rngMu sync.Mutex
}

func New(cfg Config, breakers *breaker.Manager, log *logger.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		log:       log,
		breakers:  breakers,
		providers: make(map[string]*provider),
		cursors:   make(map[Capability]int),
		rng:       rand.New(rand.NewSource(1)),
	}
}

// Register adds a provider to the coordinator. call performs the actual
// request; it must respect ctx cancellation.
func (c *Coordinator) Register(cfg ProviderConfig, call CallFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[cfg.Key] = &provider{
		cfg:  cfg,
		call: call,
		health: domain.ProviderHealth{
			ProviderKey: cfg.Key,
			Healthy:     true,
			Weight:      1.0,
		},
	}
	c.breakers.GetOrCreate(cfg.Key, &breaker.Config{
		Name:                 cfg.Key,
		MaxFailures:          c.cfg.CircuitBreakerThreshold,
		ResetTimeout:         c.cfg.CircuitBreakerCooldown,
		SuccessThreshold:     3,
		FailureRateThreshold: 0.5,
		MinRequestThreshold:  10,
		SlidingWindowSize:    100,
		HalfOpenMaxCalls:     3,
	})
}

// Route dispatches method/params to one eligible provider under
// capability, applying policy selection, retry-with-backoff, and
// non-recursive failover, per spec §4.1 steps 1-5.
func (c *Coordinator) Route(ctx context.Context, capability Capability, method string, params interface{}, opts Options) (interface{}, error) {
	if opts.Retries == 0 {
		opts = DefaultOptions()
	}

	eligible := c.eligibleProviders(capability)
	if len(eligible) == 0 {
		return nil, arberr.New(arberr.ProviderExhausted, string(capability), nil)
	}

	primary := c.selectProvider(capability, eligible)
	result, err := c.dispatchWithRetry(ctx, primary, method, params, opts)
	if err == nil {
		return result, nil
	}

	if !opts.FailoverEnabled {
		return nil, arberr.New(arberr.ProviderExhausted, primary.cfg.Key, err)
	}

	// Failover is non-recursive: pick one alternate and retry once.
	alternates := make([]*provider, 0, len(eligible))
	for _, p := range eligible {
		if p.cfg.Key != primary.cfg.Key {
			alternates = append(alternates, p)
		}
	}
	if len(alternates) == 0 {
		return nil, arberr.New(arberr.ProviderExhausted, primary.cfg.Key, err)
	}
	alt := c.selectProvider(capability, alternates)
	result, err2 := c.callOnce(ctx, alt, method, params, alt.cfg.Timeout)
	if err2 != nil {
		return nil, arberr.New(arberr.ProviderExhausted, alt.cfg.Key, err2)
	}
	return result, nil
}

func (c *Coordinator) eligibleProviders(capability Capability) []*provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	out := make([]*provider, 0, len(c.providers))
	for _, p := range c.providers {
		if !p.hasCapability(capability) {
			continue
		}
		p.mu.Lock()
		healthy := p.health.Healthy
		p.mu.Unlock()
		if !healthy {
			continue
		}
		b, ok := c.breakers.Get(p.cfg.Key)
		if ok && !b.Allow(now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// selectProvider applies the configured load-balancing policy (spec
// §4.1 step 2). Ties are broken by provider key for determinism.
func (c *Coordinator) selectProvider(capability Capability, eligible []*provider) *provider {
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].cfg.Key < eligible[j].cfg.Key })

	switch c.cfg.Policy {
	case PolicyLeastLoaded:
		best := eligible[0]
		for _, p := range eligible[1:] {
			if atomic.LoadInt64(&p.inFlight) < atomic.LoadInt64(&best.inFlight) {
				best = p
			}
		}
		return best
	case PolicyFastest:
		best := eligible[0]
		bestAvg := c.avgResponseTime(best)
		for _, p := range eligible[1:] {
			if avg := c.avgResponseTime(p); avg < bestAvg {
				best, bestAvg = p, avg
			}
		}
		return best
	case PolicyPriority:
		best := eligible[0]
		for _, p := range eligible[1:] {
			if p.cfg.Tier < best.cfg.Tier {
				best = p
			}
		}
		return best
	case PolicyWeighted:
		return c.selectWeighted(eligible)
	default: // round-robin
		c.mu.Lock()
		idx := c.cursors[capability] % len(eligible)
		c.cursors[capability] = idx + 1
		c.mu.Unlock()
		return eligible[idx]
	}
}

func (c *Coordinator) avgResponseTime(p *provider) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health.AvgResponseTime
}

func (c *Coordinator) selectWeighted(eligible []*provider) *provider {
	total := 0.0
	weights := make([]float64, len(eligible))
	for i, p := range eligible {
		p.mu.Lock()
		weights[i] = p.health.Weight
		p.mu.Unlock()
		total += weights[i]
	}
	if total <= 0 {
		return eligible[0]
	}
	c.rngMu.Lock()
	target := c.rng.Float64() * total
	c.rngMu.Unlock()
	cum := 0.0
	for i, w := range weights {
		cum += w
		if target <= cum {
			return eligible[i]
		}
	}
	return eligible[len(eligible)-1]
}

// dispatchWithRetry performs up to opts.Retries attempts with exponential
// backoff, spec §4.1 step 3.
func (c *Coordinator) dispatchWithRetry(ctx context.Context, p *provider, method string, params interface{}, opts Options) (interface{}, error) {
	backoff := opts.BackoffBase
	var lastErr error
	for attempt := 0; attempt < opts.Retries; attempt++ {
		result, err := c.callOnce(ctx, p, method, params, p.cfg.Timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == opts.Retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > opts.BackoffCap {
			backoff = opts.BackoffCap
		}
	}
	return nil, lastErr
}

// callOnce performs a single bounded call and records the outcome into
// the provider's breaker and health/weight state, spec §4.1 step 5.
func (c *Coordinator) callOnce(ctx context.Context, p *provider, method string, params interface{}, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	atomic.AddInt64(&p.inFlight, 1)
	defer atomic.AddInt64(&p.inFlight, -1)

	start := time.Now()
	b, _ := c.breakers.Get(p.cfg.Key)
	now := start

	if b != nil && !b.Allow(now) {
		return nil, arberr.New(arberr.BreakerOpen, p.cfg.Key, nil)
	}

	result, err := p.call(callCtx, method, params)
	elapsed := time.Since(start)

	if err != nil {
		if b != nil {
			b.RecordFailure(now)
		}
		c.recordFailure(p, now)
		return nil, arberr.New(arberr.ProviderTransient, p.cfg.Key, err)
	}

	if b != nil {
		b.RecordSuccess(now)
	}
	c.recordSuccess(p, now, elapsed)
	return result, nil
}

func (c *Coordinator) recordSuccess(p *provider, now time.Time, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.ConsecutiveErrors = 0
	if p.health.AvgResponseTime == 0 {
		p.health.AvgResponseTime = elapsed
	} else {
		// EMA with alpha=0.2
		p.health.AvgResponseTime = time.Duration(0.8*float64(p.health.AvgResponseTime) + 0.2*float64(elapsed))
	}
	p.health.Weight *= 1.10
	if p.health.Weight > domain.ProviderWeightCeil {
		p.health.Weight = domain.ProviderWeightCeil
	}
}

func (c *Coordinator) recordFailure(p *provider, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.ConsecutiveErrors++
	p.health.Weight *= 0.80
	if p.health.Weight < domain.ProviderWeightFloor {
		p.health.Weight = domain.ProviderWeightFloor
	}
	if p.health.ConsecutiveErrors >= c.cfg.UnhealthyAfterConsecutiveFailures {
		p.health.Healthy = false
	}
}

// ProviderHealthSnapshot returns a copy of a provider's current health.
func (c *Coordinator) ProviderHealthSnapshot(key string) (domain.ProviderHealth, bool) {
	c.mu.RLock()
	p, ok := c.providers[key]
	c.mu.RUnlock()
	if !ok {
		return domain.ProviderHealth{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health, true
}

// RunHealthProbes starts one background health-probe task per registered
// provider (spec §5 "one background task per registered information
// provider for health probing"), each polling at cfg.HealthCheckInterval
// until ctx is cancelled. probe performs the actual liveness check; a
// nil error marks the provider recovered/healthy.
func (c *Coordinator) RunHealthProbes(ctx context.Context, probe func(ctx context.Context, key string) error) {
	c.mu.RLock()
	keys := make([]string, 0, len(c.providers))
	for k := range c.providers {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	for _, key := range keys {
		go c.healthProbeLoop(ctx, key, probe)
	}
}

func (c *Coordinator) healthProbeLoop(ctx context.Context, key string, probe func(ctx context.Context, key string) error) {
	interval := c.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOneProbe(ctx, key, probe)
		}
	}
}

func (c *Coordinator) runOneProbe(ctx context.Context, key string, probe func(ctx context.Context, key string) error) {
	c.mu.RLock()
	p, ok := c.providers[key]
	c.mu.RUnlock()
	if !ok {
		return
	}
	err := probe(ctx, key)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.LastHealthCheck = time.Now()
	if err != nil {
		p.health.ConsecutiveErrors++
		p.health.ConsecutiveOK = 0
		if p.health.ConsecutiveErrors >= c.cfg.UnhealthyAfterConsecutiveFailures {
			if p.health.Healthy && c.log != nil {
				c.log.Warn("provider marked unhealthy", logger.String("provider", key))
			}
			p.health.Healthy = false
		}
		return
	}
	p.health.ConsecutiveOK++
	p.health.ConsecutiveErrors = 0
	if !p.health.Healthy {
		// A provider recovers by passing one health probe; weight resets
		// to 1.0 on recovery, spec §4.1.
		p.health.Healthy = true
		p.health.Weight = 1.0
		if c.log != nil {
			c.log.Info("provider recovered", logger.String("provider", key))
		}
	}
}
