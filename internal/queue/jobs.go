package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// SignTask is scheduled for each song queued for asynchronous signing.
	SignTask = "signature:sign"

	maxRetry = 5
)

// ErrEmptyRecordID is returned when a payload has no record id.
var ErrEmptyRecordID = errors.New("sign payload has no record id")

// SignPayload is serialized into the task payload. RecordID is chosen at
// enqueue time so the caller can look the record up once the worker is done.
// Message is base64 in JSON, so any byte sequence survives the queue.
type SignPayload struct {
	RecordID string `json:"record_id"`
	Message  []byte `json:"message"`
}

// NewSignTask builds the asynq task for payload.
func NewSignTask(payload SignPayload) (*asynq.Task, error) {
	if payload.RecordID == "" {
		return nil, ErrEmptyRecordID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	// TaskID makes a duplicate enqueue of the same record a no-op.
	return asynq.NewTask(SignTask, data, asynq.MaxRetry(maxRetry), asynq.TaskID(payload.RecordID)), nil
}

// ParseSignPayload decodes a task payload.
func ParseSignPayload(task *asynq.Task) (SignPayload, error) {
	var payload SignPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SignPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	if payload.RecordID == "" {
		return SignPayload{}, ErrEmptyRecordID
	}
	return payload, nil
}

// EnqueueSign enqueues a signing job.
func EnqueueSign(ctx context.Context, client *asynq.Client, payload SignPayload) error {
	task, err := NewSignTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue sign task: %w", err)
	}
	return nil
}
