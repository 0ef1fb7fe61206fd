// Package events publishes import lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event *kafka.Event) error
}

// Emitter turns domain events into Kafka envelopes
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) ImportCompleted(ctx context.Context, userID string, event ImportCompletedEvent) error {
	return e.emit(ctx, EventTypeImportCompleted, userID, event.OperationID, event)
}

func (e *Emitter) ImportReverted(ctx context.Context, userID string, event ImportRevertedEvent) error {
	return e.emit(ctx, EventTypeImportReverted, userID, event.OperationID, event)
}

func (e *Emitter) LeadsMerged(ctx context.Context, userID string, event LeadsMergedEvent) error {
	return e.emit(ctx, EventTypeLeadsMerged, userID, event.MasterID, event)
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, userID, aggregateID string, payload any) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter."+string(eventType))
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = e.publisher.Publish(ctx, &kafka.Event{
		EventType:   string(eventType),
		UserID:      userID,
		AggregateID: aggregateID,
		Data:        data,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
