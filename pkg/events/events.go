// Package events publishes change events for committed writes. Publishing
// is best effort: the write has already committed when an event is sent.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation is the kind of write an event describes.
type Operation string

const (
	OpCreate Operation = "c"
	OpUpdate Operation = "u"
	OpDelete Operation = "d"
)

// Event describes one committed create, update or delete.
type Event struct {
	ID         string         `json:"id"`
	Op         Operation      `json:"op"`
	Collection string         `json:"collection"`
	Key        any            `json:"key"`
	Before     map[string]any `json:"before"`
	After      map[string]any `json:"after"`
	TsMs       int64          `json:"ts_ms"`
}

// New returns an event stamped with a fresh id and the current time.
func New(op Operation, collection string, key any, before, after map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Op:         op,
		Collection: collection,
		Key:        key,
		Before:     before,
		After:      after,
		TsMs:       time.Now().UnixMilli(),
	}
}

// Publisher delivers events to a connector.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	// Name identifies the connector in logs and metrics.
	Name() string
	Close() error
}

const (
	ConnectorNone = "none"
	ConnectorLog  = "log"
	ConnectorNATS = "nats"
)

// Open returns the publisher for connector, configured from cfg.
func Open(ctx context.Context, connector string, cfg map[string]any, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch connector {
	case "", ConnectorNone:
		return Nop{}, nil
	case ConnectorLog:
		return NewLogPublisher(logger), nil
	case ConnectorNATS:
		natsCfg, err := DecodeNATSConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewNATSPublisher(ctx, natsCfg, logger)
	}
	return nil, fmt.Errorf("unknown events connector %q", connector)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Name() string                         { return ConnectorNone }
func (Nop) Close() error                         { return nil }

// LogPublisher writes events to a zap logger.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("change event",
		zap.String("id", e.ID),
		zap.String("op", string(e.Op)),
		zap.String("collection", e.Collection),
		zap.Any("key", e.Key),
		zap.Any("before", e.Before),
		zap.Any("after", e.After),
		zap.Int64("ts_ms", e.TsMs),
	)
	return nil
}

func (p *LogPublisher) Name() string { return ConnectorLog }
func (p *LogPublisher) Close() error { return nil }
