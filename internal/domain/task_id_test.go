package domain

import (
	"strings"
	"testing"
)

func TestNewTaskID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "uuid", value: "6f1c2b7a-3e0d-4b57-9a8e-2f6c1d0b9e44", wantErr: false},
		{name: "short label", value: "A", wantErr: false},
		{name: "legacy numeric", value: "1700000000000", wantErr: false},
		{name: "empty", value: "", wantErr: true},
		{name: "space inside", value: "task one", wantErr: true},
		{name: "trailing newline", value: "task\n", wantErr: true},
		{name: "too long", value: strings.Repeat("a", 129), wantErr: true},
		{name: "max length", value: strings.Repeat("a", 128), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewTaskID(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTaskID(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if !tt.wantErr && id.String() != tt.value {
				t.Errorf("String() = %q, want %q", id.String(), tt.value)
			}
		})
	}
}

func TestTaskID_Equals(t *testing.T) {
	a := TaskID("a")
	if !a.Equals(TaskID("a")) {
		t.Error("expected equal IDs to be equal")
	}
	if a.Equals(TaskID("b")) {
		t.Error("expected different IDs to differ")
	}
}
