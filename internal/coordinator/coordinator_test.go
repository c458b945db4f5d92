package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(policy Policy) *Coordinator {
	cfg := DefaultConfig()
	cfg.Policy = policy
	cfg.CircuitBreakerThreshold = 5
	cfg.CircuitBreakerCooldown = 50 * time.Millisecond
	return New(cfg, breaker.NewManager(nil), nil)
}

func TestRoute_RoundRobinAlternates(t *testing.T) {
	c := newTestCoordinator(PolicyRoundRobin)
	var calls int32
	c.Register(ProviderConfig{Key: "p1", Capabilities: []Capability{CapabilityPricing}, Timeout: time.Second}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "p1", nil
	})
	c.Register(ProviderConfig{Key: "p2", Capabilities: []Capability{CapabilityPricing}, Timeout: time.Second}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "p2", nil
	})

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		res, err := c.Route(context.Background(), CapabilityPricing, "getPrice", nil, DefaultOptions())
		require.NoError(t, err)
		seen[res.(string)] = true
	}
	assert.True(t, seen["p1"])
	assert.True(t, seen["p2"])
}

func TestRoute_FailoverOnExhaustedPrimary(t *testing.T) {
	c := newTestCoordinator(PolicyPriority)
	opts := DefaultOptions()
	opts.Retries = 1

	c.Register(ProviderConfig{Key: "bad", Capabilities: []Capability{CapabilityPricing}, Tier: TierCritical, Timeout: time.Second}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	c.Register(ProviderConfig{Key: "good", Capabilities: []Capability{CapabilityPricing}, Tier: TierLow, Timeout: time.Second}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
		return "ok", nil
	})

	res, err := c.Route(context.Background(), CapabilityPricing, "getPrice", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestRoute_OpensBreakerAfterThreshold(t *testing.T) {
	c := newTestCoordinator(PolicyRoundRobin)
	c.cfg.CircuitBreakerThreshold = 2
	opts := DefaultOptions()
	opts.Retries = 1
	opts.FailoverEnabled = false

	c.Register(ProviderConfig{Key: "p1", Capabilities: []Capability{CapabilityPricing}, Timeout: time.Second}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
		return nil, errors.New("down")
	})

	b, ok := c.breakers.Get("p1")
	require.True(t, ok)
	b.RecordFailure(time.Now())
	b.RecordFailure(time.Now())
	assert.Equal(t, breaker.StateOpen, b.State())

	_, err := c.Route(context.Background(), CapabilityPricing, "getPrice", nil, opts)
	assert.Error(t, err)
}

func TestHealthProbe_MarksUnhealthyAfterThreeFailures(t *testing.T) {
	c := newTestCoordinator(PolicyRoundRobin)
	c.Register(ProviderConfig{Key: "p1", Capabilities: []Capability{CapabilityPricing}, Timeout: time.Second}, func(ctx context.Context, method string, params interface{}) (interface{}, error) {
		return "x", nil
	})

	for i := 0; i < 3; i++ {
		c.runOneProbe(context.Background(), "p1", func(ctx context.Context, key string) error {
			return errors.New("timeout")
		})
	}
	h, ok := c.ProviderHealthSnapshot("p1")
	require.True(t, ok)
	assert.False(t, h.Healthy)

	c.runOneProbe(context.Background(), "p1", func(ctx context.Context, key string) error { return nil })
	h, _ = c.ProviderHealthSnapshot("p1")
	assert.True(t, h.Healthy)
	assert.Equal(t, 1.0, h.Weight)
}
