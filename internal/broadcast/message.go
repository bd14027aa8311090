// Package broadcast implements the UI Broadcast (C5): a websocket fan-out
// of Behavior FSM updates to subscribed frontends, generalized from the
// teacher's session-state broadcaster into a domain-agnostic Update/Snapshot
// fan-out with an added ping/pong heartbeat.
package broadcast

import (
	"github.com/nourivex/orbit/internal/fsm"
	"github.com/nourivex/orbit/internal/snapshot"
)

// MessageType tags the outbound frame's payload shape.
type MessageType string

const (
	MsgUpdate   MessageType = "update"
	MsgSnapshot MessageType = "snapshot"
	MsgError    MessageType = "error"
)

// Message is the outbound envelope. Seq is a monotonically increasing
// per-broadcaster counter letting clients detect dropped frames; the
// teacher's equivalent broadcaster stamped Seq onto a WSMessage type that,
// as copied, never actually declared the field — Message declares it
// explicitly so every outbound frame is self-describing.
type Message struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

// UpdatePayload carries a Behavior FSM Update.
type UpdatePayload struct {
	Update fsm.Update `json:"update"`
}

// SnapshotPayload carries a Context Snapshot, used for the UI's debug
// surface rather than any approval-relevant signal.
type SnapshotPayload struct {
	Snapshot snapshot.Snapshot `json:"snapshot"`
}

// ErrorPayload reports a server-side error to connected clients.
type ErrorPayload struct {
	Message string `json:"message"`
}

// InboundFrame is the {type, data} shape clients send back: user actions
// (button taps on the bubble) and heartbeat pings.
type InboundFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

const (
	InboundUserAction = "user_action"
	InboundPing       = "ping"
)
