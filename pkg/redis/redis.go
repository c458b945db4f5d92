// Package redis provides the optional append-only telemetry log external
// operators may consume (spec §6 "Persisted state"): a thin Client seam
// over go-redis/v9 plus a Writer that drains internal/telemetry.Sink's
// event stream into a capped Redis list.
//
// Grounded on pkg/redis/interfaces.go's Client-interface/mock pattern,
// narrowed to the handful of operations the log actually needs.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowshift/arbengine/internal/telemetry"
	"github.com/flowshift/arbengine/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

// Client is the subset of go-redis/v9's operations the telemetry log
// writer needs.
type Client interface {
	RPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// NewClient dials a real go-redis/v9 client for addr.
func NewClient(addr, password string, db int) Client {
	return goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
}

// record is the JSON shape appended to the log, one line per event.
type record struct {
	Kind          string    `json:"kind"`
	At            time.Time `json:"at"`
	ChainID       int64     `json:"chain_id,omitempty"`
	OpportunityID string    `json:"opportunity_id,omitempty"`
	ExecutionID   string    `json:"execution_id,omitempty"`
	FromState     string    `json:"from_state,omitempty"`
	ToState       string    `json:"to_state,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	RealizedMarginUSD string `json:"realized_margin_usd,omitempty"`
	GasSpentNative     string `json:"gas_spent_native,omitempty"`
	ProviderKey   string    `json:"provider_key,omitempty"`
	Healthy       bool      `json:"healthy,omitempty"`
}

// WriterConfig tunes the capped-list log.
type WriterConfig struct {
	Key    string // default "arbengine:telemetry"
	MaxLen int64  // default 100_000
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{Key: "arbengine:telemetry", MaxLen: 100_000}
}

// Writer drains a telemetry event stream into Redis, one RPush per event,
// trimmed to MaxLen — the optional, externally-consumed append-only log
// spec §6 describes. It is an external collaborator: nothing in the core
// engine blocks on it, and its absence never affects admission decisions.
type Writer struct {
	cfg    WriterConfig
	client Client
	log    *logger.Logger
}

func NewWriter(cfg WriterConfig, client Client, log *logger.Logger) *Writer {
	if cfg.Key == "" {
		cfg.Key = "arbengine:telemetry"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 100_000
	}
	return &Writer{cfg: cfg, client: client, log: log}
}

// Run drains events until the channel closes or ctx is canceled. A
// marshal or Redis error is logged and the event is skipped; the writer
// never applies backpressure to the producer.
func (w *Writer) Run(ctx context.Context, events <-chan telemetry.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			w.append(ctx, e)
		}
	}
}

func (w *Writer) append(ctx context.Context, e telemetry.Event) {
	r := record{
		Kind:              string(e.Kind),
		At:                e.At,
		ChainID:           e.ChainID,
		OpportunityID:     e.OpportunityID,
		ExecutionID:       e.ExecutionID,
		FromState:         string(e.FromState),
		ToState:           string(e.ToState),
		Reason:            e.Reason,
		Outcome:           string(e.Outcome),
		RealizedMarginUSD: e.RealizedMarginUSD.String(),
		GasSpentNative:    e.GasSpentNative.String(),
		ProviderKey:       e.ProviderKey,
		Healthy:           e.Healthy,
	}
	payload, err := json.Marshal(r)
	if err != nil {
		if w.log != nil {
			w.log.Warn("telemetry log marshal failed", logger.Err(err))
		}
		return
	}
	if err := w.client.RPush(ctx, w.cfg.Key, payload).Err(); err != nil {
		if w.log != nil {
			w.log.Warn("telemetry log append failed", logger.Err(err))
		}
		return
	}
	if err := w.client.LTrim(ctx, w.cfg.Key, -w.cfg.MaxLen, -1).Err(); err != nil && w.log != nil {
		w.log.Warn("telemetry log trim failed", logger.Err(err))
	}
}
