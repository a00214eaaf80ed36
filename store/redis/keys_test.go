package redis

import (
	"testing"
	"time"
)

func TestKeyShapes(t *testing.T) {
	t.Parallel()

	if got := taskKey("invoices", "task_abc"); got != "warrant:invoices:task:task_abc" {
		t.Fatalf("taskKey = %q", got)
	}
	if got := leaseKey("invoices", "task_abc"); got != "warrant:invoices:lease:task_abc" {
		t.Fatalf("leaseKey = %q", got)
	}
	if got := candidatesKey("invoices"); got != "warrant:invoices:candidates" {
		t.Fatalf("candidatesKey = %q", got)
	}
	if got := resultKey("invoices", "task_abc"); got != "warrant:invoices:result:task_abc" {
		t.Fatalf("resultKey = %q", got)
	}
}

func TestCandidateScoreOrdering(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	// Higher priority rank always scores below lower rank, regardless
	// of age.
	oldLow := candidateScore(0, now.Add(-24*time.Hour))
	newCritical := candidateScore(3, now)
	if newCritical >= oldLow {
		t.Fatalf("critical (%f) should score below low (%f)", newCritical, oldLow)
	}

	// Within one rank, older tasks score lower.
	older := candidateScore(2, now.Add(-time.Hour))
	newer := candidateScore(2, now)
	if older >= newer {
		t.Fatalf("older (%f) should score below newer (%f)", older, newer)
	}
}
