package gate

import (
	"testing"
	"time"

	"github.com/nourivex/orbit/internal/intent"
	"github.com/nourivex/orbit/internal/snapshot"
)

func freshIntent(confidence float64) intent.Intent {
	return intent.Intent{
		Kind:       intent.SuggestHelp,
		Confidence: confidence,
		Message:    "test message",
		CreatedAt:  time.Now(),
	}
}

func TestEvaluateApprovesAtExactThreshold(t *testing.T) {
	g := New(TestingThresholds())
	d := g.Evaluate(freshIntent(0.70), snapshot.Snapshot{}, 0)
	if !d.Approved {
		t.Fatalf("expected approval at confidence exactly %.2f, got reason %q", ConfidenceThreshold, d.Reason)
	}
}

func TestEvaluateRejectsBelowThreshold(t *testing.T) {
	g := New(TestingThresholds())
	d := g.Evaluate(freshIntent(0.69), snapshot.Snapshot{}, 0)
	if d.Approved {
		t.Fatalf("expected rejection below threshold")
	}
}

func TestEvaluateGlobalCooldownBlocksImmediateRepeat(t *testing.T) {
	g := New(TestingThresholds())
	first := g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)
	if !first.Approved {
		t.Fatalf("first evaluate should approve, got %q", first.Reason)
	}

	second := g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)
	if second.Approved {
		t.Fatalf("second evaluate should be blocked by global cooldown")
	}
}

func TestRecordDismissTripsDismissCooldown(t *testing.T) {
	g := New(TestingThresholds())
	g.RecordDismiss()

	d := g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)
	if d.Approved {
		t.Fatalf("expected dismiss cooldown to block approval")
	}
	if got := d.Reason; got == "" {
		t.Fatalf("expected a rejection reason")
	}
}

func TestConfidenceDecayFromRepeatedDismissals(t *testing.T) {
	g := New(TestingThresholds())
	g.RecordKindDismiss(intent.SuggestHelp)
	g.RecordKindDismiss(intent.SuggestHelp)

	// 0.85 - 2*0.10 = 0.65, below threshold.
	d := g.Evaluate(freshIntent(0.85), snapshot.Snapshot{}, 0)
	if d.Approved {
		t.Fatalf("expected dismiss decay to push confidence below threshold, got approved with reason %q", d.Reason)
	}
}

func TestConfidenceDecayFromContextChange(t *testing.T) {
	g := New(TestingThresholds())
	// Prime the "previous context" via a first, lower-stakes evaluate.
	g.Evaluate(freshIntent(0.95), snapshot.Snapshot{ActiveApp: "Code.exe", IsIdle: true}, 0)
	g.Reset() // clear cooldown/spam bookkeeping but not what we're about to re-prime

	g.Evaluate(freshIntent(0.95), snapshot.Snapshot{ActiveApp: "Code.exe", IsIdle: true}, 0)

	// active_app changes: -0.15 decay. 0.80 - 0.15 = 0.65, below threshold.
	d := g.Evaluate(freshIntent(0.80), snapshot.Snapshot{ActiveApp: "Chrome.exe", IsIdle: true}, 0)
	if d.Approved {
		t.Fatalf("expected context-change decay to reject, got approved")
	}
}

func TestConfidenceDecayFromAge(t *testing.T) {
	g := New(TestingThresholds())
	// age 300s -> time_decay = min(0.20, (300/300)*0.20) = 0.20
	d := g.Evaluate(freshIntent(0.89), snapshot.Snapshot{}, 300)
	if d.Approved {
		t.Fatalf("expected age decay of 0.20 to push 0.89 below threshold")
	}
}

func TestNegativeAgeTreatedAsZero(t *testing.T) {
	g := New(TestingThresholds())
	d := g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, -50)
	if !d.Approved {
		t.Fatalf("expected negative age to be treated as zero, got rejection %q", d.Reason)
	}
}

func TestSpamFilterMaxPopupsPerHour(t *testing.T) {
	th := TestingThresholds()
	th.GlobalCooldown = 0
	th.PerKindCooldown = 0
	th.SameKindWindow = 0
	th.MaxPopupsPerHour = 2
	g := New(th)

	for i := 0; i < 2; i++ {
		d := g.Evaluate(freshIntent(0.95), snapshot.Snapshot{}, 0)
		if !d.Approved {
			t.Fatalf("evaluate %d: expected approval, got %q", i, d.Reason)
		}
	}

	d := g.Evaluate(freshIntent(0.95), snapshot.Snapshot{}, 0)
	if d.Approved {
		t.Fatalf("expected third popup to be rejected by the hourly cap")
	}
}

func TestResetClearsAllLedgers(t *testing.T) {
	g := New(TestingThresholds())
	g.RecordDismiss()
	g.RecordKindDismiss(intent.SuggestHelp)
	g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)

	g.Reset()

	d := g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)
	if !d.Approved {
		t.Fatalf("expected a fresh evaluate after reset to approve, got %q", d.Reason)
	}
}

func TestCooldownRemainingNeverNegative(t *testing.T) {
	g := New(TestingThresholds())
	g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)

	time.Sleep(6 * time.Second) // exceed global cooldown (5s) but not per-kind (10s)
	d := g.Evaluate(freshIntent(0.90), snapshot.Snapshot{}, 0)
	if d.Approved {
		t.Fatalf("expected per-kind cooldown still active")
	}
	if !d.NextAllowedTime.After(time.Now().Add(-time.Second)) {
		t.Fatalf("next allowed time should not be in the past by more than rounding")
	}
}
