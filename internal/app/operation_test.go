package app

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Scenes",
			parameters: "owner=alice",
		},
		{
			name:       "empty parameters",
			operation:  "Serve",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if _, err := uuid.Parse(op.ID); err != nil {
				t.Errorf("ID %q is not a UUID: %v", op.ID, err)
			}
			if op.StartedAt.IsZero() {
				t.Error("StartedAt not set")
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("Publish", "")
	if op.Failed() {
		t.Fatal("new operation reports failure")
	}
	op.Fail()
	if !op.Failed() {
		t.Error("Failed() = false after Fail()")
	}
	if op.Status != "error" {
		t.Errorf("Status = %q, want error", op.Status)
	}
}

func TestNewOperation_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewOperation("Stats", "").ID
		if seen[id] {
			t.Fatalf("duplicate operation ID %s", id)
		}
		seen[id] = true
	}
}
