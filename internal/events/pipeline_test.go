package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturedIDs(sink *CaptureSink) []string {
	events := sink.Events()
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func TestNewNodeEvent(t *testing.T) {
	e1 := NewNodeEvent(NodeCreated, "change1", "n1", "Device")
	e2 := NewNodeEvent(NodeCreated, "change1", "n1", "Device")

	assert.Equal(t, NodeCreated, e1.Kind)
	assert.Equal(t, "change1", e1.Branch)
	assert.Equal(t, "n1", e1.NodeID)
	assert.Equal(t, "Device", e1.NodeKind)
	assert.False(t, e1.At.IsZero())
	assert.NotEqual(t, e1.ID, e2.ID)
}

func TestPipelineFlushesFullBatch(t *testing.T) {
	sink := NewCaptureSink()
	p := NewPipeline(Config{QueueSize: 10, BatchSize: 2, FlushInterval: time.Minute}, sink, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	e1 := NewBranchEvent(BranchCreated, "change1")
	e2 := NewNodeEvent(NodeCreated, "change1", "n1", "Device")
	p.Publish(e1)
	p.Publish(e2)

	assert.Eventually(t, func() bool {
		return len(sink.Events()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{e1.ID, e2.ID}, capturedIDs(sink))
}

func TestPipelineFlushesOnInterval(t *testing.T) {
	sink := NewCaptureSink()
	p := NewPipeline(Config{QueueSize: 10, BatchSize: 100, FlushInterval: 20 * time.Millisecond}, sink, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	p.Publish(NewBranchEvent(BranchCreated, "change1"))

	assert.Eventually(t, func() bool {
		return len(sink.Events()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStopDrainsQueue(t *testing.T) {
	sink := NewCaptureSink()
	p := NewPipeline(Config{QueueSize: 10, BatchSize: 100, FlushInterval: time.Minute}, sink, nil)
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 3; i++ {
		p.Publish(NewNodeEvent(NodeUpdated, "main", "n1", "Device"))
	}

	require.NoError(t, p.Stop(context.Background()))
	assert.Len(t, sink.Events(), 3)
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	sink := NewCaptureSink()
	p := NewPipeline(Config{QueueSize: 2, BatchSize: 100, FlushInterval: time.Minute}, sink, metrics)

	e1 := NewBranchEvent(BranchCreated, "b1")
	e2 := NewBranchEvent(BranchCreated, "b2")
	e3 := NewBranchEvent(BranchCreated, "b3")
	p.Publish(e1)
	p.Publish(e2)
	p.Publish(e3)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.dropped))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.published))

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, []string{e2.ID, e3.ID}, capturedIDs(sink))
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Write(_ context.Context, _ []Event) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func TestStopTimesOutOnStuckSink(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPipeline(Config{QueueSize: 10, BatchSize: 1, FlushInterval: time.Minute}, sink, nil)
	require.NoError(t, p.Start(context.Background()))

	p.Publish(NewBranchEvent(BranchCreated, "change1"))
	<-sink.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Stop(ctx)
	require.Error(t, err)

	close(sink.release)
}

func TestCaptureSinkCopiesBatch(t *testing.T) {
	sink := NewCaptureSink()
	batch := []Event{NewBranchEvent(BranchCreated, "b1")}
	require.NoError(t, sink.Write(context.Background(), batch))

	original := batch[0].ID
	batch[0] = NewBranchEvent(BranchDeleted, "b2")

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, original, events[0].ID)
}
