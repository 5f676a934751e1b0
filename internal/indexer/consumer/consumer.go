// Package consumer reads catalog change events from Kafka and marks the
// affected index engines stale so the next search rebuilds them.
package consumer

import (
	"context"
	"log/slog"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
)

// Invalidator is implemented by indexer.Engine.
type Invalidator interface {
	Invalidate()
}

// CacheInvalidator is implemented by cache.QueryCache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scope string) (int64, error)
}

// CatalogConsumer wraps a Kafka consumer to drive index invalidation.
type CatalogConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a CatalogConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *CatalogConsumer {
	return &CatalogConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "catalog-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (cc *CatalogConsumer) Start(ctx context.Context) error {
	cc.logger.Info("catalog consumer starting")
	return cc.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that invalidates the engine
// registered for each event's entity. An event for an unknown entity
// invalidates every engine. Cached responses are dropped as a whole because
// combined and advanced results mix both entities. queryCache may be nil.
func HandleMessage(engines map[catalog.Entity]Invalidator, queryCache CacheInvalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "catalog-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[catalog.ChangeEvent](value)
		if err != nil {
			logger.Error("failed to decode catalog change event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		if engine, ok := engines[event.Entity]; ok {
			engine.Invalidate()
		} else {
			for _, engine := range engines {
				engine.Invalidate()
			}
		}

		if queryCache != nil {
			if _, err := queryCache.Invalidate(ctx, ""); err != nil {
				logger.Warn("cache invalidation failed", "error", err)
			}
		}

		logger.Info("catalog change applied",
			"entity", event.Entity,
			"ids", len(event.IDs),
			"changed_at", event.ChangedAt,
		)
		return nil
	}
}
