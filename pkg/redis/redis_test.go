package redis

import (
	"context"
	"testing"
	"time"

	"github.com/flowshift/arbengine/internal/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	pushed  [][]interface{}
	trimmed bool
}

func (f *fakeClient) RPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd {
	f.pushed = append(f.pushed, values)
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.pushed)))
	return cmd
}

func (f *fakeClient) LTrim(ctx context.Context, key string, start, stop int64) *goredis.StatusCmd {
	f.trimmed = true
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeClient) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeClient) Close() error { return nil }

func TestWriter_RunAppendsUntilChannelCloses(t *testing.T) {
	client := &fakeClient{}
	w := NewWriter(DefaultWriterConfig(), client, nil)

	events := make(chan telemetry.Event, 4)
	events <- telemetry.Event{Kind: telemetry.EventOpportunityDetected, At: time.Now(), ChainID: 1, OpportunityID: "o1"}
	events <- telemetry.Event{Kind: telemetry.EventExecutionCompleted, At: time.Now(), ChainID: 1, ExecutionID: "e1"}
	close(events)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not exit after channel closed")
	}

	require.Len(t, client.pushed, 2)
	assert.True(t, client.trimmed)
}

func TestWriter_RunStopsOnContextCancel(t *testing.T) {
	client := &fakeClient{}
	w := NewWriter(DefaultWriterConfig(), client, nil)
	events := make(chan telemetry.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, events)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not exit after context cancel")
	}
}
