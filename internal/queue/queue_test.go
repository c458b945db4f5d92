package queue

import (
	"testing"
	"time"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelemetry struct {
	enqueued []domain.Opportunity
	dropped  []domain.Opportunity
}

func (f *fakeTelemetry) OpportunityEnqueued(now time.Time, o domain.Opportunity) {
	f.enqueued = append(f.enqueued, o)
}
func (f *fakeTelemetry) OpportunityDropped(now time.Time, o domain.Opportunity, reason string) {
	f.dropped = append(f.dropped, o)
}

func oppWithProfit(id string, profit int64) domain.Opportunity {
	return domain.Opportunity{
		ID:      id,
		ChainID: 1,
		Estimate: domain.EstimatorOutput{
			NetProfitUSD: decimal.NewFromInt(profit),
			Confidence:   decimal.NewFromInt(1),
		},
		DetectedAt: time.Now(),
	}
}

func TestQueue_FIFODequeueOrder(t *testing.T) {
	q := New(DefaultConfig(), nil, nil)
	q.Enqueue(oppWithProfit("a", 10))
	q.Enqueue(oppWithProfit("b", 20))

	first, ok := q.TryDequeue(1)
	require.True(t, ok)
	assert.Equal(t, "a", first.ID)
}

func TestQueue_AtMostOneInFlightPerChain(t *testing.T) {
	q := New(DefaultConfig(), nil, nil)
	q.Enqueue(oppWithProfit("a", 10))
	q.Enqueue(oppWithProfit("b", 20))

	_, ok := q.TryDequeue(1)
	require.True(t, ok)

	_, ok = q.TryDequeue(1)
	assert.False(t, ok, "a second dequeue must be refused while chain 1 has an in-flight Execution")

	q.Release(1)
	_, ok = q.TryDequeue(1)
	assert.True(t, ok, "dequeue resumes once the lane is released")
}

func TestQueue_OverflowDropsLowestRankedNotNewest(t *testing.T) {
	cfg := Config{CapacityPerChain: 2}
	tel := &fakeTelemetry{}
	q := New(cfg, tel, nil)

	q.Enqueue(oppWithProfit("low", 1))
	q.Enqueue(oppWithProfit("high", 100))
	// Third arrival outranks "low": "low" must be evicted, the newest kept.
	q.Enqueue(oppWithProfit("mid", 50))

	require.Len(t, tel.dropped, 1)
	assert.Equal(t, "low", tel.dropped[0].ID)
	assert.Equal(t, 2, q.Len(1))
}

func TestQueue_OverflowDropsNewestWhenItRanksLowest(t *testing.T) {
	cfg := Config{CapacityPerChain: 2}
	tel := &fakeTelemetry{}
	q := New(cfg, tel, nil)

	q.Enqueue(oppWithProfit("a", 100))
	q.Enqueue(oppWithProfit("b", 50))
	q.Enqueue(oppWithProfit("worst", 1))

	require.Len(t, tel.dropped, 1)
	assert.Equal(t, "worst", tel.dropped[0].ID)
}
