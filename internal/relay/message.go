package relay

import (
	"encoding/json"

	"github.com/Sarvinsurya/docs-sync-backend/internal/presence"
)

// Inbound actions accepted from clients. Anything else is logged and ignored,
// which keeps the envelope forward-compatible with future action types.
const (
	ActionJoin           = "join"
	ActionCursorPosition = "cursor_position"
	ActionDelta          = "delta"
)

// Outbound actions emitted to clients.
const (
	ActionCollaboratorsUpdate = "collaborators_update"
	ActionDeltaUpdate         = "delta_update"
)

// inboundMessage is the envelope for every client frame: a JSON object with
// an action discriminator and action-specific fields.
type inboundMessage struct {
	Action         string          `json:"action"`
	DocumentID     string          `json:"documentId"`
	UserID         string          `json:"userId"`
	UserName       string          `json:"userName"`
	Token          string          `json:"token"`
	CursorPosition json.RawMessage `json:"cursorPosition"`
	Selection      json.RawMessage `json:"selection"`
	Delta          json.RawMessage `json:"delta"`
}

type collaboratorsUpdateMessage struct {
	Action        string                  `json:"action"`
	Collaborators []presence.Collaborator `json:"collaborators"`
}

type cursorPositionMessage struct {
	Action         string          `json:"action"`
	UserID         string          `json:"userId"`
	UserName       string          `json:"userName"`
	CursorPosition json.RawMessage `json:"cursorPosition"`
	Selection      json.RawMessage `json:"selection,omitempty"`
}

type deltaUpdateMessage struct {
	Action     string          `json:"action"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	Delta      json.RawMessage `json:"delta"`
}
