// Package queue implements the Execution Queue (C7, spec §4.7): a bounded,
// per-chain FIFO lane with rank-based tail eviction on overflow and
// at-most-one-Execution-per-chain-in-flight serialization.
//
// Grounded on internal/workerpool's bounded-channel-per-lane shape,
// generalized from "job" to "chain lane" and from reject-on-full to the
// spec's rank-based-eviction-on-full policy.
package queue

import (
	"sync"
	"time"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/pkg/logger"
)

// Telemetry is the subset of the Telemetry Sink (C10) the queue emits
// enqueue/drop events through.
type Telemetry interface {
	OpportunityEnqueued(now time.Time, o domain.Opportunity)
	OpportunityDropped(now time.Time, o domain.Opportunity, reason string)
}

// Config controls queue capacity.
type Config struct {
	CapacityPerChain int // default 64
}

func DefaultConfig() Config {
	return Config{CapacityPerChain: 64}
}

// lane is one chain's bounded, rank-ordered backlog plus its in-flight
// flag. Held as a slice rather than a channel so the rank-based eviction
// policy (drop the lowest-ranked tail element, not the newest) can inspect
// and remove an arbitrary element.
type lane struct {
	mu        sync.Mutex
	items     []domain.Opportunity
	inFlight  bool
}

// Queue is C7: one lane per enabled chain.
type Queue struct {
	cfg   Config
	tel   Telemetry
	log   *logger.Logger

	mu    sync.RWMutex
	lanes map[int64]*lane
}

func New(cfg Config, tel Telemetry, log *logger.Logger) *Queue {
	if cfg.CapacityPerChain <= 0 {
		cfg.CapacityPerChain = 64
	}
	return &Queue{cfg: cfg, tel: tel, log: log, lanes: make(map[int64]*lane)}
}

func (q *Queue) laneFor(chainID int64) *lane {
	q.mu.RLock()
	l, ok := q.lanes[chainID]
	q.mu.RUnlock()
	if ok {
		return l
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if l, ok = q.lanes[chainID]; ok {
		return l
	}
	l = &lane{}
	q.lanes[chainID] = l
	return l
}

// Enqueue admits o into its chain's lane. Enqueue is always non-blocking:
// if the lane is at capacity, the lowest-ranked element across the lane
// (including o itself, if o ranks lowest) is dropped with a telemetry
// event rather than rejecting the newest arrival, spec §4.7.
func (q *Queue) Enqueue(o domain.Opportunity) {
	l := q.laneFor(o.ChainID)
	l.mu.Lock()
	l.items = append(l.items, o)
	if len(l.items) > q.cfg.CapacityPerChain {
		worstIdx := 0
		for i := 1; i < len(l.items); i++ {
			if l.items[i].Less(l.items[worstIdx]) {
				worstIdx = i
			}
		}
		dropped := l.items[worstIdx]
		l.items = append(l.items[:worstIdx], l.items[worstIdx+1:]...)
		l.mu.Unlock()
		now := time.Now()
		if q.tel != nil {
			q.tel.OpportunityDropped(now, dropped, "queue_full")
		}
		if dropped.ID != o.ID && q.tel != nil {
			q.tel.OpportunityEnqueued(now, o)
		}
		return
	}
	l.mu.Unlock()
	if q.tel != nil {
		q.tel.OpportunityEnqueued(time.Now(), o)
	}
}

// TryDequeue returns the oldest (FIFO) Opportunity for chainID and marks
// the lane in-flight, or reports false if the lane is empty or already has
// an Execution in flight (spec §4.7: at most one Execution per chain in
// flight; dequeue order within a lane is FIFO, spec §5 ordering
// guarantees).
func (q *Queue) TryDequeue(chainID int64) (domain.Opportunity, bool) {
	l := q.laneFor(chainID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight || len(l.items) == 0 {
		return domain.Opportunity{}, false
	}
	o := l.items[0]
	l.items = l.items[1:]
	l.inFlight = true
	return o, true
}

// Release clears the in-flight flag for chainID once its Execution has
// reached a terminal state, allowing the next dequeue.
func (q *Queue) Release(chainID int64) {
	l := q.laneFor(chainID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight = false
}

// Len reports the current backlog depth for chainID (for tests/metrics).
func (q *Queue) Len(chainID int64) int {
	l := q.laneFor(chainID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
