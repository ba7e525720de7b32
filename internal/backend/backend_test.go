package backend

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFactory_CreatesSimulatedAdapter(t *testing.T) {
	b, err := New(Config{Type: "simulated"}, NewProcessManager())
	if err != nil {
		t.Fatalf("Expected no error creating simulated adapter, got: %v", err)
	}
	if _, ok := b.(*SimulatedAdapter); !ok {
		t.Errorf("Expected *SimulatedAdapter, got %T", b)
	}
}

func TestFactory_CreatesCommandAdapter(t *testing.T) {
	b, err := New(Config{Type: "command", Command: "claude", WorkDir: "/tmp/test"}, NewProcessManager())
	if err != nil {
		t.Fatalf("Expected no error creating command adapter, got: %v", err)
	}
	if _, ok := b.(*CommandAdapter); !ok {
		t.Errorf("Expected *CommandAdapter, got %T", b)
	}
}

func TestFactory_CommandRequiresBinary(t *testing.T) {
	_, err := New(Config{Type: "command"}, nil)
	if err == nil {
		t.Fatal("Expected error for command backend without a command, got nil")
	}
}

// TestFactory_UnknownType verifies error handling for unknown types
func TestFactory_UnknownType(t *testing.T) {
	_, err := New(Config{Type: "unknown"}, NewProcessManager())
	if err == nil {
		t.Fatal("Expected error for unknown backend type, got nil")
	}
	if !strings.Contains(err.Error(), "unknown backend type") {
		t.Errorf("Expected error to mention 'unknown backend type', got: %v", err)
	}
}

func TestTransient(t *testing.T) {
	base := errors.New("rate limited")

	if IsTransient(base) {
		t.Error("plain error should not be transient")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}

	wrapped := fmt.Errorf("worker: %w", Transient(base))
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error should be transient")
	}
	if !errors.Is(wrapped, base) {
		t.Error("transient error should unwrap to its cause")
	}
}

func TestUsageSum(t *testing.T) {
	tests := []struct {
		name  string
		usage Usage
		want  int
	}{
		{"reported total", Usage{Input: 10, Output: 5, Total: 20}, 20},
		{"derived total", Usage{Input: 10, Output: 5}, 15},
		{"empty", Usage{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usage.Sum(); got != tt.want {
				t.Errorf("Sum() = %d, want %d", got, tt.want)
			}
		})
	}
}
