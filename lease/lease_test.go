package lease

import (
	"testing"
	"time"
)

func TestClampSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sec  int64
		want time.Duration
	}{
		{"zero clamps up", 0, time.Second},
		{"negative clamps up", -5, time.Second},
		{"below max untouched", 30, 30 * time.Second},
		{"min boundary", 1, time.Second},
		{"max boundary", 600, 600 * time.Second},
		{"above max clamps down", 10000, 600 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampSeconds(tt.sec); got != tt.want {
				t.Fatalf("ClampSeconds(%d) = %v, want %v", tt.sec, got, tt.want)
			}
		})
	}
}

func TestDefaultWithinBounds(t *testing.T) {
	t.Parallel()

	if Clamp(DefaultDuration) != DefaultDuration {
		t.Fatalf("default duration %v falls outside the clamp bounds", DefaultDuration)
	}
}

func TestExpiredAndHeldBy(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	l := &Lease{WorkerID: "wkr-a", ExpiresAt: now.Add(time.Minute)}

	if l.Expired(now) {
		t.Fatal("unexpired lease reported expired")
	}
	if !l.HeldBy("wkr-a", now) {
		t.Fatal("holder not recognized")
	}
	if l.HeldBy("wkr-b", now) {
		t.Fatal("non-holder recognized as holder")
	}
	if !l.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("lapsed lease reported live")
	}
	if l.HeldBy("wkr-a", now.Add(2*time.Minute)) {
		t.Fatal("expired lease still counts as held")
	}
}

func TestStrengthOrdering(t *testing.T) {
	t.Parallel()

	if !(StrengthSerialized > StrengthTransactional && StrengthTransactional > StrengthOptimistic) {
		t.Fatal("strength ranking out of order")
	}

	names := map[Strength]string{
		StrengthSerialized:    "serialized",
		StrengthTransactional: "transactional",
		StrengthOptimistic:    "optimistic",
	}
	for s, want := range names {
		if s.String() != want {
			t.Fatalf("Strength(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
