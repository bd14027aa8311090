// Package intent holds the value types shared across the intent proposer,
// decision gate, and behavior FSM: Intent, Decision, and Kind.
package intent

import (
	"encoding/json"
	"time"
)

// Kind classifies the semantic category of an Intent. Only SuggestHelp and
// None are admissible from any proposer in this release; Remind and Info
// are reserved for a future release and always coerce to None if produced.
type Kind int

const (
	None Kind = iota
	SuggestHelp
	Remind
	Info
)

var kindNames = map[Kind]string{
	None:        "none",
	SuggestHelp: "suggest_help",
	Remind:      "remind",
	Info:        "info",
}

var kindFromName = map[string]Kind{
	"none":         None,
	"suggest_help": SuggestHelp,
	"remind":       Remind,
	"info":         Info,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := kindFromName[s]; ok {
		*k = v
	} else {
		*k = None
	}
	return nil
}

// KindFromString normalises an arbitrary string into a Kind. Unknown values
// and the locked-out Remind/Info kinds fall back to None, matching the v0.2
// proposer contract of only ever admitting suggest_help or none.
func KindFromString(s string) Kind {
	if k, ok := kindFromName[s]; ok && (k == None || k == SuggestHelp) {
		return k
	}
	return None
}

// Intent is a proposal produced by the intent proposer. The Reasoning field
// is a confidentiality invariant: it must never leave the proposer's
// boundary — it is logged internally and cleared before the Intent is
// handed to the decision gate or the behavior FSM.
type Intent struct {
	Kind       Kind      `json:"kind"`
	Confidence float64   `json:"confidence"`
	Message    string    `json:"message"`
	Reasoning  string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Stripped returns a copy of the Intent with Reasoning cleared, ready to
// cross the proposer boundary toward the gate and FSM.
func (i Intent) Stripped() Intent {
	i.Reasoning = ""
	return i
}

// Decision is the ephemeral result of a Gate evaluation.
type Decision struct {
	Approved        bool
	Intent          Intent
	Reason          string
	NextAllowedTime time.Time // zero value means "no active cooldown"
}
