package app

import (
	"time"

	"github.com/google/uuid"
)

// Operation tracks one CLI invocation. Its ID tags every log line the
// invocation writes.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	StartedAt  time.Time
	Status     string // "success" or "error"
}

// NewOperation creates an operation with a fresh ID.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		ID:         uuid.NewString(),
		Name:       name,
		Parameters: parameters,
		StartedAt:  time.Now().UTC(),
		Status:     "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed reports whether Fail was called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
