// Package orchestrator implements the tick loop (C6) that threads a
// Context Snapshot through the Intent Proposer, Decision Gate, and
// Behavior FSM every tick, and fans the resulting UI Update out over the
// broadcaster.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nourivex/orbit/internal/aggregator"
	"github.com/nourivex/orbit/internal/broadcast"
	"github.com/nourivex/orbit/internal/eventlog"
	"github.com/nourivex/orbit/internal/fsm"
	"github.com/nourivex/orbit/internal/gate"
	"github.com/nourivex/orbit/internal/intent"
	"github.com/nourivex/orbit/internal/proposer"
	"github.com/nourivex/orbit/internal/snapshot"
)

// Stats mirrors the original orchestrator's per-run counters (spec.md's
// supplemented feature from original_source/main_v2.py's self.stats),
// exposed for introspection and tests.
type Stats struct {
	Iterations       int64
	IntentsGenerated int64
	IntentsApproved  int64
	IntentsRejected  int64
	Errors           int64
}

// Orchestrator wires the C1-C5 components into a single tick loop.
type Orchestrator struct {
	aggregator *aggregator.Aggregator
	proposer   *proposer.Proposer
	gate       *gate.Gate
	fsm        *fsm.FSM
	broadcast  *broadcast.Broadcaster
	eventlog   *eventlog.Log // may be nil: telemetry is optional

	pollInterval time.Duration

	mu        sync.Mutex
	stats     Stats
	startedAt time.Time
}

// Config bundles the wired components and tick cadence.
type Config struct {
	Aggregator   *aggregator.Aggregator
	Proposer     *proposer.Proposer
	Gate         *gate.Gate
	FSM          *fsm.FSM
	Broadcaster  *broadcast.Broadcaster
	EventLog     *eventlog.Log // optional
	PollInterval time.Duration
}

// New returns an Orchestrator ready to Run. It registers itself as the
// broadcaster's inbound user_action handler.
func New(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	o := &Orchestrator{
		aggregator:   cfg.Aggregator,
		proposer:     cfg.Proposer,
		gate:         cfg.Gate,
		fsm:          cfg.FSM,
		broadcast:    cfg.Broadcaster,
		eventlog:     cfg.EventLog,
		pollInterval: cfg.PollInterval,
	}
	if o.broadcast != nil {
		o.broadcast.SetUserActionHandler(o.HandleUserAction)
	}
	if o.fsm != nil {
		o.fsm.SetUIUpdateCallback(o.handleUIUpdate)
	}
	return o
}

// Run enters the tick loop, returning when ctx is cancelled. Every tick
// error is isolated: it is logged and counted, never fatal to the loop
// (matching the original orchestrator's `except Exception` wrapper around
// its whole iteration body).
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.startedAt = time.Now()
	o.mu.Unlock()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	log.Printf("orchestrator: entering main loop (poll interval %s)", o.pollInterval)

	o.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("orchestrator: stopped")
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.mu.Lock()
			o.stats.Errors++
			o.mu.Unlock()
			log.Printf("orchestrator: recovered panic in tick: %v", r)
		}
	}()

	o.mu.Lock()
	o.stats.Iterations++
	o.mu.Unlock()

	snap := o.aggregator.Snapshot()
	o.checkContextChange(snap)
	o.fsm.CheckTimeout()

	if o.fsm.Current() == fsm.Observing {
		in := o.proposer.Propose(ctx, snap)
		if in.Kind != intent.None {
			o.mu.Lock()
			o.stats.IntentsGenerated++
			o.mu.Unlock()

			ageSeconds := time.Since(in.CreatedAt).Seconds()
			decision := o.gate.Evaluate(in, snap, ageSeconds)

			o.mu.Lock()
			if decision.Approved {
				o.stats.IntentsApproved++
			} else {
				o.stats.IntentsRejected++
			}
			o.mu.Unlock()

			o.logDecision(snap, decision)

			if decision.Approved {
				o.fsm.TriggerEvent(fsm.IntentApproved, &decision.Intent)
			}
		}
	}

	if o.broadcast != nil {
		o.broadcast.BroadcastSnapshot(broadcast.SnapshotPayload{Snapshot: snap})
	}
}

// checkContextChange fires CONTEXT_CHANGED into the FSM when the snapshot
// is interesting enough to wake it (idle >= 180s, more than 3 recent file
// changes, or a pending error) and the FSM is currently Idle, per the
// IDLE -> OBSERVING wake rule.
func (o *Orchestrator) checkContextChange(snap snapshot.Snapshot) {
	if o.fsm.Current() != fsm.Idle {
		return
	}
	if !snap.IsInteresting() {
		return
	}
	o.fsm.TriggerEvent(fsm.ContextChanged, nil)
}

func (o *Orchestrator) handleUIUpdate(u fsm.Update) {
	if o.broadcast != nil {
		o.broadcast.BroadcastUpdate(broadcast.UpdatePayload{Update: u})
	}
}

// HandleUserAction routes an inbound user_action frame (e.g. "Ya",
// "Nanti", "Dismiss") to the behavior FSM, recording a dismiss against the
// gate's cooldown ledger when applicable.
func (o *Orchestrator) HandleUserAction(action string) {
	ev, ok := fsm.ActionToEvent(action)
	if !ok {
		log.Printf("orchestrator: unrecognised user action %q", action)
		return
	}

	if ev == fsm.UserDismiss {
		if held := o.fsm.HeldIntent(); held != nil {
			o.gate.RecordKindDismiss(held.Kind)
		}
		o.gate.RecordDismiss()
	}

	o.fsm.TriggerEvent(ev, nil)
}

// EnterFocusMode and ExitFocusMode route focus-mode toggles (e.g. from a
// UI "do not disturb" control) into the FSM.
func (o *Orchestrator) EnterFocusMode() { o.fsm.TriggerEvent(fsm.EnterFocusMode, nil) }
func (o *Orchestrator) ExitFocusMode()  { o.fsm.TriggerEvent(fsm.ExitFocusMode, nil) }

func (o *Orchestrator) logDecision(snap snapshot.Snapshot, d intent.Decision) {
	if o.eventlog == nil {
		return
	}

	evType := eventlog.EventIntentRejected
	if d.Approved {
		evType = eventlog.EventIntentApproved
	}
	err := o.eventlog.Insert(eventlog.Event{
		Type:        evType,
		AppName:     snap.ActiveApp,
		WindowTitle: snap.WindowTitle,
		IdleSeconds: snap.IdleSeconds,
		FileChanges: snap.RecentFileChanges,
		ErrorCount:  snap.ErrorCount,
		Data:        d.Reason,
	})
	if err != nil {
		log.Printf("orchestrator: event log insert failed: %v", err)
	}
}

// Stats returns a copy of the running counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
