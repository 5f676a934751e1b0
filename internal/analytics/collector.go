package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
)

// BatchPublisher is the subset of kafka.Producer the collector uses.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig bounds the in-memory queue and the Kafka batches.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector queues events and publishes them to Kafka when a batch fills
// up or the flush interval passes, whichever comes first. Track is safe to
// call concurrently with and after Close.
type Collector struct {
	producer      BatchPublisher
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(producer BatchPublisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		producer:      producer,
		eventCh:       make(chan SearchEvent, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close, flushing whatever
// is queued before returning; ctx only scopes the publishes.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(ctx, batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.Scope, Value: event})
				if len(batch) >= c.batchSize {
					c.flush(ctx, batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track enqueues event, dropping it when the buffer is full or the
// collector is closed.
func (c *Collector) Track(event SearchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Debug("analytics event dropped (collector closed)")
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush. Calling it
// more than once is a no-op.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics batch", "count", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics batch published", "count", len(batch))
}
