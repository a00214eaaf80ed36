package id

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewAndParse(t *testing.T) {
	t.Parallel()

	tid := NewTaskID()
	if tid.IsNil() {
		t.Fatal("NewTaskID returned nil ID")
	}
	if tid.Prefix() != PrefixTask {
		t.Fatalf("prefix = %q, want %q", tid.Prefix(), PrefixTask)
	}
	if !strings.HasPrefix(tid.String(), "task_") {
		t.Fatalf("String() = %q, want task_ prefix", tid.String())
	}

	parsed, err := ParseTaskID(tid.String())
	if err != nil {
		t.Fatalf("ParseTaskID round-trip: %v", err)
	}
	if parsed.String() != tid.String() {
		t.Fatalf("round-trip mismatch: %q != %q", parsed.String(), tid.String())
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"garbage", "not-a-typeid"},
		{"bad suffix", "task_!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.in); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.in)
			}
		})
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	t.Parallel()

	wkr := New(PrefixWorker)
	if _, err := ParseTaskID(wkr.String()); err == nil {
		t.Fatal("ParseTaskID accepted a wkr_ id")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	tid := NewTaskID()
	data, err := json.Marshal(tid)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back ID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.String() != tid.String() {
		t.Fatalf("json round-trip mismatch: %q != %q", back.String(), tid.String())
	}
}

func TestNilID(t *testing.T) {
	t.Parallel()

	if Nil.String() != "" {
		t.Fatalf("Nil.String() = %q, want empty", Nil.String())
	}

	v, err := Nil.Value()
	if err != nil {
		t.Fatalf("Nil.Value(): %v", err)
	}
	if v != nil {
		t.Fatalf("Nil.Value() = %v, want nil", v)
	}
}

func TestNewWorkerString(t *testing.T) {
	t.Parallel()

	w := NewWorkerString()
	if !strings.HasPrefix(w, "wkr_") {
		t.Fatalf("NewWorkerString() = %q, want wkr_ prefix", w)
	}
}
