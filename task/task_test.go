package task

import (
	"testing"
	"time"

	"github.com/xraph/warrant/id"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityMedium, false},
		{"low", PriorityLow, false},
		{"medium", PriorityMedium, false},
		{"high", PriorityHigh, false},
		{"critical", PriorityCritical, false},
		{"urgent", "", true},
		{"HIGH", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePriority(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePriority(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRankRoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if got := PriorityFromRank(p.Rank()); got != p {
			t.Fatalf("PriorityFromRank(%d) = %q, want %q", p.Rank(), got, p)
		}
	}
}

func TestSortCandidates(t *testing.T) {
	t.Parallel()

	base := time.Now().UTC()
	mk := func(p Priority, age time.Duration) *Task {
		return &Task{
			ID:       id.NewTaskID(),
			Priority: p,
			Status:   StatusPending,
			QueuedAt: base.Add(-age),
		}
	}

	oldLow := mk(PriorityLow, 3*time.Hour)
	newHigh := mk(PriorityHigh, time.Minute)
	oldHigh := mk(PriorityHigh, time.Hour)
	critical := mk(PriorityCritical, time.Second)

	tasks := []*Task{oldLow, newHigh, oldHigh, critical}
	SortCandidates(tasks)

	want := []*Task{critical, oldHigh, newHigh, oldLow}
	for i := range want {
		if tasks[i] != want[i] {
			t.Fatalf("position %d = %s (prio %s), want %s (prio %s)",
				i, tasks[i].ID, tasks[i].Priority, want[i].ID, want[i].Priority)
		}
	}
}
