package snapshot

import (
	"testing"
	"time"
)

func TestLevelForIdleSecondsBoundaries(t *testing.T) {
	cases := []struct {
		idle int
		want IdleLevel
	}{
		{0, Active},
		{59, Active},
		{60, Short},
		{179, Short},
		{180, Medium},
		{299, Medium},
		{300, Long},
		{10000, Long},
	}
	for _, c := range cases {
		if got := LevelForIdleSeconds(c.idle); got != c.want {
			t.Errorf("LevelForIdleSeconds(%d) = %v, want %v", c.idle, got, c.want)
		}
	}
}

func TestIsInteresting(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{"active, no changes, no errors", Snapshot{IdleSeconds: 10}, false},
		{"medium idle", Snapshot{IdleSeconds: 180}, true},
		{"many file changes", Snapshot{RecentFileChanges: 4}, true},
		{"few file changes", Snapshot{RecentFileChanges: 3}, false},
		{"has errors", Snapshot{ErrorCount: 1}, true},
	}
	for _, c := range cases {
		if got := c.snap.IsInteresting(); got != c.want {
			t.Errorf("%s: IsInteresting() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestEmptyStampsCounters(t *testing.T) {
	now := time.Now()
	s := Empty(now, 42, 7)
	if s.SequenceNumber != 42 || s.ErrorCount != 7 || !s.Timestamp.Equal(now) {
		t.Fatalf("Empty() = %+v", s)
	}
	if s.IdleLevel != Active {
		t.Errorf("Empty().IdleLevel = %v, want Active", s.IdleLevel)
	}
}

func TestRingDiscardsOldestOnceFull(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Push(Snapshot{SequenceNumber: uint64(i)})
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	recent := r.Recent(3)
	want := []uint64{2, 3, 4}
	for i, s := range recent {
		if s.SequenceNumber != want[i] {
			t.Errorf("Recent()[%d].SequenceNumber = %d, want %d", i, s.SequenceNumber, want[i])
		}
	}
}

func TestRingRecentOldestFirst(t *testing.T) {
	r := NewRing(5)
	r.Push(Snapshot{SequenceNumber: 1})
	r.Push(Snapshot{SequenceNumber: 2})
	r.Push(Snapshot{SequenceNumber: 3})

	recent := r.Recent(2)
	if len(recent) != 2 || recent[0].SequenceNumber != 2 || recent[1].SequenceNumber != 3 {
		t.Fatalf("Recent(2) = %+v, want seq 2 then 3", recent)
	}
}

func TestRingRecentZeroWhenEmpty(t *testing.T) {
	r := NewRing(4)
	if got := r.Recent(10); got != nil {
		t.Fatalf("Recent() on empty ring = %+v, want nil", got)
	}
}
