package events

import (
	"context"
	"sync"
	"time"

	"github.com/tributarydb/tributary/internal/logging"
)

// Config tunes the pipeline. Zero values take the defaults.
type Config struct {
	// QueueSize bounds the in-memory queue (default 1000). When full, the
	// oldest entry is dropped to make room.
	QueueSize int
	// BatchSize is the flush threshold (default 100).
	BatchSize int
	// FlushInterval flushes partial batches (default 1s).
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	return c
}

// Pipeline is the write-behind event queue. Publish never blocks the
// writer; a background flusher delivers batches to the sink in publish
// order.
type Pipeline struct {
	config  Config
	sink    Sink
	metrics *Metrics
	logger  *logging.Logger

	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline creates a pipeline delivering to sink. A nil sink falls back
// to the logging sink; a nil metrics disables instrumentation.
func NewPipeline(config Config, sink Sink, metrics *Metrics) *Pipeline {
	config = config.withDefaults()
	if sink == nil {
		sink = NewLogSink()
	}
	return &Pipeline{
		config:  config,
		sink:    sink,
		metrics: metrics,
		logger:  logging.GetLogger("events"),
		queue:   make(chan Event, config.QueueSize),
	}
}

// Start launches the background flusher.
func (p *Pipeline) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.flushLoop()

	p.logger.InfoWithFields("event pipeline started",
		logging.Field("queue_size", p.config.QueueSize),
		logging.Field("batch_size", p.config.BatchSize),
		logging.Field("flush_interval", p.config.FlushInterval.String()),
	)
	return nil
}

// Stop drains the queue and flushes the remainder. The context bounds how
// long to wait; on timeout undelivered events are abandoned.
func (p *Pipeline) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("event pipeline stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("event pipeline stop timed out")
		return ctx.Err()
	}
}

// Name identifies the component to the lifecycle manager.
func (p *Pipeline) Name() string {
	return "events"
}

// Publish enqueues an event without ever blocking. When the queue is full
// the oldest entry is evicted so recent events survive; under heavy
// contention the new event itself may be dropped instead.
func (p *Pipeline) Publish(event Event) {
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case p.queue <- event:
			p.metrics.eventPublished()
			p.metrics.setQueueDepth(len(p.queue))
			return
		default:
		}
		select {
		case <-p.queue:
			p.metrics.eventDropped()
		default:
		}
	}
	p.metrics.eventDropped()
}

func (p *Pipeline) flushLoop() {
	defer p.wg.Done()

	batch := make([]Event, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	// Sink writes run on a fresh context so a cancelled pipeline can still
	// drain; the Stop deadline bounds the caller instead.
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.sink.Write(context.Background(), batch); err != nil {
			p.metrics.sinkError()
			p.logger.ErrorWithErr("event sink write failed", err)
		} else {
			p.metrics.eventsFlushed(len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-p.ctx.Done():
			for {
				select {
				case event := <-p.queue:
					batch = append(batch, event)
					if len(batch) >= p.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case event := <-p.queue:
			batch = append(batch, event)
			p.metrics.setQueueDepth(len(p.queue))
			if len(batch) >= p.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
