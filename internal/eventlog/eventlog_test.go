package eventlog

import (
	"testing"
	"time"
)

func TestInsertAndQueryRoundTrip(t *testing.T) {
	log, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	err = log.Insert(Event{
		Type:        EventContextSnapshot,
		AppName:     "Code.exe",
		IdleSeconds: 300,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	events, err := log.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].AppName != "Code.exe" || events[0].IdleSeconds != 300 {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].Timestamp.IsZero() {
		t.Fatalf("expected Insert to stamp a timestamp")
	}
}

func TestQueryFiltersByType(t *testing.T) {
	log, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	log.Insert(Event{Type: EventContextSnapshot})
	log.Insert(Event{Type: EventIntentApproved})

	events, err := log.Query(Filter{Types: []EventType{EventIntentApproved}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventIntentApproved {
		t.Fatalf("expected exactly one intent_approved event, got %+v", events)
	}
}

func TestQueryOrdersNewestFirst(t *testing.T) {
	log, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	log.Insert(Event{Type: EventContextSnapshot, Timestamp: older, AppName: "old"})
	log.Insert(Event{Type: EventContextSnapshot, Timestamp: newer, AppName: "new"})

	events, err := log.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 || events[0].AppName != "new" {
		t.Fatalf("expected newest-first order, got %+v", events)
	}
}

func TestCleanupOlderThanRemovesOldRows(t *testing.T) {
	log, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	old := time.Now().AddDate(0, 0, -10)
	log.Insert(Event{Type: EventContextSnapshot, Timestamp: old})
	log.Insert(Event{Type: EventContextSnapshot, Timestamp: time.Now()})

	removed, err := log.CleanupOlderThan(5)
	if err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	events, _ := log.Query(Filter{})
	if len(events) != 1 {
		t.Fatalf("remaining events = %d, want 1", len(events))
	}
}
