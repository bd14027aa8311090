package fsm

import (
	"testing"
	"time"

	"github.com/nourivex/orbit/internal/intent"
)

func TestInitialStateIsIdle(t *testing.T) {
	f := New()
	if f.Current() != Idle {
		t.Fatalf("new FSM state = %v, want Idle", f.Current())
	}
	out := f.UIOutput()
	if out.Visible {
		t.Fatalf("idle UI output should not be visible")
	}
}

func TestTransitionTableMatchesSpec(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		want State
		ok   bool
	}{
		{Idle, ContextChanged, Observing, true},
		{Idle, IntentApproved, Suggesting, true},
		{Idle, EnterFocusMode, CooldownGlobal, true},
		{Idle, UserDismiss, Idle, false},
		{Observing, IntentApproved, Suggesting, true},
		{Observing, Timeout, Idle, true},
		{Observing, EnterFocusMode, CooldownGlobal, true},
		{Suggesting, UserDismiss, Suppressed, true},
		{Suggesting, UserAction, Executing, true},
		{Suggesting, Timeout, Idle, true},
		{Suggesting, EnterFocusMode, CooldownGlobal, true},
		{Executing, Timeout, Idle, true},
		{Executing, UserDismiss, Suppressed, true},
		{Executing, ContextChanged, Executing, false},
		{Suppressed, CooldownExpired, Idle, true},
		{CooldownGlobal, ExitFocusMode, Idle, true},
	}

	for _, tt := range tests {
		f := New()
		f.current = tt.from // white-box: force starting state
		got := f.TriggerEvent(tt.ev, nil)
		if got != tt.ok {
			t.Errorf("%v + %v: TriggerEvent ok = %v, want %v", tt.from, tt.ev, got, tt.ok)
			continue
		}
		if tt.ok && f.Current() != tt.want {
			t.Errorf("%v + %v: resulting state = %v, want %v", tt.from, tt.ev, f.Current(), tt.want)
		}
	}
}

func TestInvalidEventIsNoOp(t *testing.T) {
	f := New()
	if f.TriggerEvent(UserDismiss, nil) {
		t.Fatalf("UserDismiss from Idle should be a no-op")
	}
	if f.Current() != Idle {
		t.Fatalf("state should remain Idle after a no-op event")
	}
}

func TestSuggestingUIOutputCarriesIntentMessage(t *testing.T) {
	f := New()
	in := &intent.Intent{Kind: intent.SuggestHelp, Message: "Butuh bantuan?"}
	f.TriggerEvent(ContextChanged, nil)
	f.TriggerEvent(IntentApproved, in)

	out := f.UIOutput()
	if !out.Visible || out.Bubble == nil {
		t.Fatalf("suggesting output should be visible with a bubble")
	}
	if out.Bubble.Text != "Butuh bantuan?" {
		t.Fatalf("bubble text = %q, want intent message", out.Bubble.Text)
	}
	wantActions := []string{"Ya", "Nanti", "Dismiss"}
	if len(out.Bubble.Actions) != len(wantActions) {
		t.Fatalf("bubble actions = %v, want %v", out.Bubble.Actions, wantActions)
	}
}

func TestCheckTimeoutFiresAfterDuration(t *testing.T) {
	f := New()
	f.TriggerEvent(ContextChanged, nil) // -> Observing
	f.mu.Lock()
	f.enteredAt = time.Now().Add(-StateTimeouts[Observing] - time.Second)
	f.mu.Unlock()

	if !f.CheckTimeout() {
		t.Fatalf("expected timeout to fire")
	}
	if f.Current() != Idle {
		t.Fatalf("state after observing timeout = %v, want Idle", f.Current())
	}
}

func TestSuppressedTimesOutViaCooldownExpired(t *testing.T) {
	f := New()
	f.current = Suppressed
	f.enteredAt = time.Now().Add(-StateTimeouts[Suppressed] - time.Second)

	if !f.CheckTimeout() {
		t.Fatalf("expected suppressed state to time out")
	}
	if f.Current() != Idle {
		t.Fatalf("state after suppressed timeout = %v, want Idle", f.Current())
	}
}

func TestActionToEventMapping(t *testing.T) {
	tests := []struct {
		action string
		want   Event
		ok     bool
	}{
		{"Ya", UserAction, true},
		{"Yes", UserAction, true},
		{"OK", UserAction, true},
		{"Nanti", Timeout, true},
		{"Later", Timeout, true},
		{"Dismiss", UserDismiss, true},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		ev, ok := ActionToEvent(tt.action)
		if ok != tt.ok {
			t.Errorf("ActionToEvent(%q) ok = %v, want %v", tt.action, ok, tt.ok)
			continue
		}
		if ok && ev != tt.want {
			t.Errorf("ActionToEvent(%q) = %v, want %v", tt.action, ev, tt.want)
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	f := New()
	for i := 0; i < defaultHistoryLimit+20; i++ {
		f.TriggerEvent(ContextChanged, nil)
		f.TriggerEvent(Timeout, nil)
	}
	h := f.History(0)
	if len(h) > defaultHistoryLimit {
		t.Fatalf("history length = %d, want <= %d", len(h), defaultHistoryLimit)
	}
}

func TestCallbacksFireOnTransition(t *testing.T) {
	f := New()
	var gotChange bool
	var gotUpdate bool
	f.SetStateChangeCallback(func(from, to State, ev Event) { gotChange = true })
	f.SetUIUpdateCallback(func(u Update) { gotUpdate = true })

	f.TriggerEvent(ContextChanged, nil)

	if !gotChange || !gotUpdate {
		t.Fatalf("expected both callbacks to fire on a successful transition")
	}
}
