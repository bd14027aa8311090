// Package fsm implements the Behavior FSM (C4): the lifecycle of a
// suggestion from observation through suggestion, execution, dismissal, and
// cooldown, plus the UI Update it derives from its current state.
package fsm

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nourivex/orbit/internal/intent"
)

// State is one of the fixed FSM states.
type State int

const (
	Idle State = iota
	Observing
	Suggesting
	Executing
	Suppressed
	CooldownGlobal
)

var stateNames = map[State]string{
	Idle:           "idle",
	Observing:      "observing",
	Suggesting:     "suggesting",
	Executing:      "executing",
	Suppressed:     "suppressed",
	CooldownGlobal: "cooldown_global",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Event is one of the fixed FSM events.
type Event int

const (
	ContextChanged Event = iota
	IntentApproved
	UserDismiss
	UserAction
	Timeout
	CooldownExpired
	EnterFocusMode
	ExitFocusMode
)

var eventNames = map[Event]string{
	ContextChanged:  "context_changed",
	IntentApproved:  "intent_approved",
	UserDismiss:     "user_dismiss",
	UserAction:      "user_action",
	Timeout:         "timeout",
	CooldownExpired: "cooldown_expired",
	EnterFocusMode:  "enter_focus_mode",
	ExitFocusMode:   "exit_focus_mode",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown"
}

// transitions is the fixed state/event transition table from the spec's
// §4.4. Missing (state, event) pairs are no-ops.
var transitions = map[State]map[Event]State{
	Idle: {
		ContextChanged: Observing,
		IntentApproved: Suggesting,
		EnterFocusMode: CooldownGlobal,
	},
	Observing: {
		IntentApproved: Suggesting,
		Timeout:        Idle,
		EnterFocusMode: CooldownGlobal,
	},
	Suggesting: {
		UserDismiss:    Suppressed,
		UserAction:     Executing,
		Timeout:        Idle,
		EnterFocusMode: CooldownGlobal,
	},
	Executing: {
		Timeout:     Idle,
		UserDismiss: Suppressed,
	},
	Suppressed: {
		CooldownExpired: Idle,
	},
	CooldownGlobal: {
		ExitFocusMode: Idle,
	},
}

// StateTimeouts gives the per-state timeout duration; states absent from
// this map (Idle, CooldownGlobal) never time out on their own.
var StateTimeouts = map[State]time.Duration{
	Observing:  30 * time.Second,
	Suggesting: 60 * time.Second,
	Executing:  10 * time.Second,
	Suppressed: 600 * time.Second,
}

const defaultHistoryLimit = 100

// defaultSuggestingMessage is shown when a SUGGESTING state is entered
// without a held Intent message (should not normally happen, but keeps
// ui_output total).
const defaultSuggestingMessage = "Ada yang bisa kubantu?"

// Transition records one historical state change.
type Transition struct {
	From      State
	To        State
	Event     Event
	Timestamp time.Time
}

// Bubble is the optional speech-bubble payload of a UI Update.
type Bubble struct {
	Text    string   `json:"text"`
	Actions []string `json:"actions"`
}

// Update is the immutable message the FSM emits on every transition.
type Update struct {
	State   string  `json:"state"`
	Emotion string  `json:"emotion"`
	Visible bool    `json:"visible"`
	Bubble  *Bubble `json:"bubble,omitempty"`
}

// StateChangeFunc is notified synchronously on every successful transition.
type StateChangeFunc func(from, to State, ev Event)

// UIUpdateFunc is notified synchronously with the derived UI Update after
// every successful transition.
type UIUpdateFunc func(Update)

// FSM is the Behavior FSM. It performs no I/O itself; it notifies the
// orchestrator of state changes and UI updates via callbacks, matching the
// spec's "two outbound channels" note expressed here as two callback
// hooks (the orchestrator is the sole caller in this process, so a mailbox
// channel would add no real concurrency the callback form lacks).
type FSM struct {
	mu sync.Mutex

	current    State
	enteredAt  time.Time
	heldIntent *intent.Intent
	history    []Transition

	onStateChange StateChangeFunc
	onUIUpdate    UIUpdateFunc
}

// New returns an FSM starting in Idle.
func New() *FSM {
	return &FSM{
		current:   Idle,
		enteredAt: time.Now(),
	}
}

// SetStateChangeCallback registers the state-change notification hook.
func (f *FSM) SetStateChangeCallback(fn StateChangeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStateChange = fn
}

// SetUIUpdateCallback registers the UI-update notification hook.
func (f *FSM) SetUIUpdateCallback(fn UIUpdateFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUIUpdate = fn
}

// Current returns the current state.
func (f *FSM) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// HeldIntent returns the Intent associated with the current SUGGESTING or
// EXECUTING state, or nil outside those states.
func (f *FSM) HeldIntent() *intent.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heldIntent == nil {
		return nil
	}
	held := *f.heldIntent
	return &held
}

// TriggerEvent fires ev against the current state. It returns true if a
// transition occurred; an event invalid for the current state is a silent
// no-op (matching the FSM invalid-event error policy).
func (f *FSM) TriggerEvent(ev Event, in *intent.Intent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, ok := transitions[f.current][ev]
	if !ok {
		return false
	}

	f.transitionLocked(next, ev, in)
	return true
}

func (f *FSM) transitionLocked(next State, ev Event, in *intent.Intent) {
	prev := f.current
	now := time.Now()

	f.history = append(f.history, Transition{From: prev, To: next, Event: ev, Timestamp: now})
	if len(f.history) > defaultHistoryLimit {
		f.history = f.history[len(f.history)-defaultHistoryLimit:]
	}

	f.current = next
	f.enteredAt = now

	// An Intent only survives into SUGGESTING/EXECUTING; any other
	// destination clears it.
	switch next {
	case Suggesting, Executing:
		if in != nil {
			held := *in
			f.heldIntent = &held
		}
	default:
		f.heldIntent = nil
	}

	onStateChange := f.onStateChange
	onUIUpdate := f.onUIUpdate
	update := f.uiOutputLocked()

	if onStateChange != nil {
		onStateChange(prev, next, ev)
	}
	if onUIUpdate != nil {
		onUIUpdate(update)
	}
}

// CheckTimeout fires Timeout (or CooldownExpired for Suppressed) if the
// current state has exceeded its configured timeout. Returns true if a
// transition occurred.
func (f *FSM) CheckTimeout() bool {
	f.mu.Lock()
	timeout, hasTimeout := StateTimeouts[f.current]
	elapsed := time.Since(f.enteredAt)
	current := f.current
	f.mu.Unlock()

	if !hasTimeout || elapsed < timeout {
		return false
	}

	ev := Timeout
	if current == Suppressed {
		ev = CooldownExpired
	}
	return f.TriggerEvent(ev, nil)
}

// UIOutput returns the UI Update derived from the current state.
func (f *FSM) UIOutput() Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uiOutputLocked()
}

func (f *FSM) uiOutputLocked() Update {
	switch f.current {
	case Idle:
		return Update{State: "idle", Emotion: "neutral", Visible: false}
	case Observing:
		return Update{State: "observing", Emotion: "curious", Visible: true}
	case Suggesting:
		message := defaultSuggestingMessage
		if f.heldIntent != nil && f.heldIntent.Message != "" {
			message = f.heldIntent.Message
		}
		return Update{
			State:   "suggesting",
			Emotion: "helpful",
			Visible: true,
			Bubble: &Bubble{
				Text:    message,
				Actions: []string{"Ya", "Nanti", "Dismiss"},
			},
		}
	case Executing:
		return Update{
			State:   "executing",
			Emotion: "working",
			Visible: true,
			Bubble: &Bubble{
				Text:    "Sedang diproses...",
				Actions: []string{},
			},
		}
	case Suppressed:
		return Update{State: "suppressed", Emotion: "quiet", Visible: false}
	case CooldownGlobal:
		return Update{State: "cooldown_global", Emotion: "quiet", Visible: false}
	default:
		return Update{State: "unknown", Emotion: "neutral", Visible: false}
	}
}

// History returns the up-to-limit most recent transitions, oldest first.
func (f *FSM) History(limit int) []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.history) {
		limit = len(f.history)
	}
	out := make([]Transition, limit)
	copy(out, f.history[len(f.history)-limit:])
	return out
}

// ActionToEvent maps a raw user-action string from the UI protocol to the
// Event the orchestrator should fire, with ok reporting whether the string
// was recognised. "Nanti"/
// "Later" is treated as a deferral, i.e. a Timeout event rather than a
// dismissal. Unknown strings return ok=false and are ignored by the caller.
func ActionToEvent(action string) (ev Event, ok bool) {
	switch action {
	case "Ya", "Yes", "OK":
		return UserAction, true
	case "Nanti", "Later":
		return Timeout, true
	case "Dismiss":
		return UserDismiss, true
	default:
		return 0, false
	}
}

// Reset returns the FSM to Idle and clears history. Intended for tests.
func (f *FSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = Idle
	f.enteredAt = time.Now()
	f.heldIntent = nil
	f.history = nil
}
