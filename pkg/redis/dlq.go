package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultDLQStream = "fern:imports:dlq"

	// dlqMaxLen caps the stream; XADD trims the oldest entries past it.
	dlqMaxLen = 10000
	dlqPage   = 100
)

// DLQEntry is one Kafka import message that could not be applied.
type DLQEntry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Topic        string          `json:"topic"`
	Partition    int             `json:"partition"`
	Offset       int64           `json:"offset"`
	Payload      json.RawMessage `json:"payload"`
	ErrorMessage string          `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	TraceID      string          `json:"trace_id,omitempty"`
}

func (e *DLQEntry) fields() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"user_id":    e.UserID,
		"topic":      e.Topic,
		"partition":  e.Partition,
		"offset":     e.Offset,
		"payload":    string(e.Payload),
		"error":      e.ErrorMessage,
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
		"trace_id":   e.TraceID,
	}
}

func entryFromStream(msg redis.XMessage) (DLQEntry, error) {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	entry := DLQEntry{
		ID:           str("id"),
		UserID:       str("user_id"),
		Topic:        str("topic"),
		Payload:      json.RawMessage(str("payload")),
		ErrorMessage: str("error"),
		TraceID:      str("trace_id"),
	}
	var err error
	if entry.Partition, err = strconv.Atoi(str("partition")); err != nil {
		return entry, fmt.Errorf("partition: %w", err)
	}
	if entry.Offset, err = strconv.ParseInt(str("offset"), 10, 64); err != nil {
		return entry, fmt.Errorf("offset: %w", err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, str("created_at")); err != nil {
		return entry, fmt.Errorf("created_at: %w", err)
	}
	return entry, nil
}

// DeadLetterQueue stores DLQEntry values as flat fields in a capped Redis stream.
type DeadLetterQueue struct {
	client *Client
	stream string
	logger ectologger.Logger
}

func NewDeadLetterQueue(client *Client, stream string, logger ectologger.Logger) *DeadLetterQueue {
	if stream == "" {
		stream = DefaultDLQStream
	}
	return &DeadLetterQueue{client: client, stream: stream, logger: logger}
}

// Add parks entry and returns its stream id. ID and CreatedAt are filled when empty.
func (d *DeadLetterQueue) Add(ctx context.Context, entry *DLQEntry) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.Add")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.TraceID = tracing.GetTraceID(ctx)

	streamID, err := d.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: dlqMaxLen,
		Approx: true,
		Values: entry.fields(),
	}).Result()
	if err != nil {
		return "", tracing.Fail(span, fmt.Errorf("park message %s/%d/%d: %w", entry.Topic, entry.Partition, entry.Offset, err))
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"dlq_id":    entry.ID,
		"user_id":   entry.UserID,
		"topic":     entry.Topic,
		"partition": entry.Partition,
		"offset":    entry.Offset,
	}).Warn("import message parked")
	return streamID, nil
}

// List returns up to count entries, newest first. Unreadable entries are skipped.
func (d *DeadLetterQueue) List(ctx context.Context, count int64) ([]DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.List")
	defer span.End()

	if count <= 0 {
		count = dlqPage
	}
	msgs, err := d.client.rdb.XRevRangeN(ctx, d.stream, "+", "-", count).Result()
	if err != nil {
		return nil, tracing.Fail(span, fmt.Errorf("read %s: %w", d.stream, err))
	}

	entries := make([]DLQEntry, 0, len(msgs))
	for _, msg := range msgs {
		entry, err := entryFromStream(msg)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).WithField("stream_id", msg.ID).Warn("skipping malformed dlq entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.rdb.XLen(ctx, d.stream).Result()
}
