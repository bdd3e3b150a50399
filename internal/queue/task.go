// Package queue provides the task model and the broker contract that moves
// envelopes between the API boundary and the worker pool.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task names route a dequeued task to its registered handler.
const (
	// TaskSendMail carries an envelope awaiting delivery.
	TaskSendMail = "mail:send"

	// TaskMailError carries a dead-letter record for the error consumer.
	TaskMailError = "mail:error"
)

// Task is the unit of queue transport. The payload is an opaque JSON
// document; the retry bookkeeping travels with the task so any worker can
// pick up a retried copy without shared state.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// NewTask builds a task with a fresh ID and the payload marshalled to JSON.
// MaxAttempts is the retry ceiling; zero disables retries entirely so a
// failure is terminal on the first attempt.
func NewTask(name, queueName string, payload any, maxAttempts int) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:          uuid.NewString(),
		Name:        name,
		Queue:       queueName,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// DecodePayload unmarshals the task payload into v.
func (t *Task) DecodePayload(v any) error {
	return json.Unmarshal(t.Payload, v)
}
