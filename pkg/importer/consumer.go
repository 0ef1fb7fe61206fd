package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/cenkalti/backoff/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// DeadLetters stores messages that could not be imported.
type DeadLetters interface {
	Add(ctx context.Context, entry *redis.DLQEntry) (string, error)
}

// HandleMessage imports a request delivered over Kafka. The user comes from the
// user_id header, never from the payload.
func (s *Service) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	var req Request
	if err := msg.Decode(&req); err != nil {
		return backoff.Permanent(fmt.Errorf("decode import request: %w", err))
	}
	req.UserID = msg.UserID()
	ctx = appctx.WithRequest(ctx, appctx.Request{
		ID:     fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		UserID: req.UserID,
	})
	if req.OperationType == "" {
		req.OperationType = models.OperationTypeMapsImport
	}

	_, err := s.Import(ctx, req, nil)
	if err != nil && !retryable(err) {
		return backoff.Permanent(err)
	}
	return err
}

// retryable reports whether redelivering the same request could succeed: a busy user
// lock or a server-side failure. Bad input never will.
func retryable(err error) bool {
	if errors.Is(err, fernerrors.ErrImportInProgress) {
		return true
	}
	return httperror.GetStatusCode(fernerrors.ToHTTPError(err)) >= http.StatusInternalServerError
}

// ParkFailed returns a failure handler that moves rejected messages to dlq so the
// consumer can commit past them.
func ParkFailed(dlq DeadLetters) kafka.FailureHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage, err error) error {
		payload := json.RawMessage(msg.Value)
		if !json.Valid(msg.Value) {
			quoted, _ := json.Marshal(string(msg.Value))
			payload = quoted
		}

		if _, addErr := dlq.Add(ctx, &redis.DLQEntry{
			UserID:       msg.UserID(),
			Topic:        msg.Topic,
			Partition:    msg.Partition,
			Offset:       msg.Offset,
			Payload:      payload,
			ErrorMessage: err.Error(),
		}); addErr != nil {
			return addErr
		}
		metrics.DLQMessagesTotal.Inc()
		return nil
	}
}
