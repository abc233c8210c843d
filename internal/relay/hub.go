// Package relay routes realtime collaboration messages between the live
// sessions of a document room. It is a best-effort broadcast layer: deltas
// are carried opaquely, nothing is persisted, and there is no merge logic.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sarvinsurya/docs-sync-backend/internal/presence"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultSendBufferSize = 32

var errMissingRegistry = errors.New("relay: presence registry is required")

// TokenValidator checks a bearer token and returns its subject. Satisfied by
// the auth token issuer so the relay can demand the same credential REST uses.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

type eventKind int

const (
	eventRegister eventKind = iota
	eventUnregister
	eventFrame
)

type hubEvent struct {
	kind    eventKind
	session *session
	data    []byte
}

// HubConfig describes the dependencies for the broadcast hub.
type HubConfig struct {
	Registry *presence.Registry
	Logger   *zap.Logger
	// Tokens and RequireAuth enable join authentication: when set, a join
	// frame must carry the caller's bearer token and its subject must match
	// the claimed userId. Off by default.
	Tokens         TokenValidator
	RequireAuth    bool
	SendBufferSize int
}

// Hub owns all live relay sessions. A single goroutine consumes the event
// channel, so every register, frame, and disconnect is handled to completion
// before the next one: room state needs no further locking and message order
// within one connection's stream is preserved toward the room.
type Hub struct {
	registry    *presence.Registry
	logger      *zap.Logger
	tokens      TokenValidator
	requireAuth bool
	bufferSize  int
	events      chan hubEvent
	sessions    map[*session]struct{}
	upgrader    websocket.Upgrader
}

// NewHub constructs the broadcast hub. Run must be started before serving
// connections.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bufferSize := cfg.SendBufferSize
	if bufferSize <= 0 {
		bufferSize = defaultSendBufferSize
	}
	return &Hub{
		registry:    cfg.Registry,
		logger:      logger,
		tokens:      cfg.Tokens,
		requireAuth: cfg.RequireAuth && cfg.Tokens != nil,
		bufferSize:  bufferSize,
		events:      make(chan hubEvent, 256),
		sessions:    make(map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}, nil
}

// Run processes hub events until the context is cancelled, then closes every
// remaining session.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for s := range h.sessions {
				delete(h.sessions, s)
				close(s.send)
			}
			return
		case event := <-h.events:
			switch event.kind {
			case eventRegister:
				h.sessions[event.session] = struct{}{}
			case eventUnregister:
				h.dropSession(event.session)
			case eventFrame:
				h.handleFrame(event.session, event.data)
			}
		}
	}
}

// HandleWebSocket upgrades the request and attaches the connection to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}
	h.enqueue(hubEvent{kind: eventRegister, session: s})

	go s.writePump()
	go s.readPump()
}

func (h *Hub) enqueue(event hubEvent) {
	h.events <- event
}

func (h *Hub) handleFrame(s *session, data []byte) {
	if _, live := h.sessions[s]; !live {
		return
	}

	var message inboundMessage
	if err := json.Unmarshal(data, &message); err != nil {
		// Malformed frames are dropped without terminating the connection.
		h.logger.Warn("malformed relay message", zap.Error(err))
		return
	}

	switch message.Action {
	case ActionJoin:
		h.handleJoin(s, message)
	case ActionCursorPosition:
		h.handleCursorPosition(s, message)
	case ActionDelta:
		h.handleDelta(s, message)
	default:
		h.logger.Info("unknown relay action", zap.String("action", message.Action))
	}
}

func (h *Hub) handleJoin(s *session, message inboundMessage) {
	if message.DocumentID == "" || message.UserID == "" {
		h.logger.Warn("join missing document or user id")
		return
	}
	if h.requireAuth {
		subject, err := h.tokens.ValidateToken(message.Token)
		if err != nil || subject != message.UserID {
			h.logger.Warn("join rejected",
				zap.String("document_id", message.DocumentID),
				zap.String("user_id", message.UserID),
				zap.Error(err))
			return
		}
	}

	userName := message.UserName
	if userName == "" {
		userName = "Anonymous"
	}

	s.joined = &membership{
		documentID: message.DocumentID,
		userID:     message.UserID,
		userName:   userName,
	}

	collaborators := h.registry.Join(message.DocumentID, message.UserID, userName)
	h.logger.Info("collaborator joined",
		zap.String("document_id", message.DocumentID),
		zap.String("user_id", message.UserID),
		zap.String("user_name", userName))

	h.announceCollaborators(message.DocumentID, collaborators)
}

func (h *Hub) handleCursorPosition(s *session, message inboundMessage) {
	if s.joined == nil {
		h.logger.Warn("cursor_position before join")
		return
	}
	if len(message.CursorPosition) == 0 {
		return
	}

	payload, err := json.Marshal(cursorPositionMessage{
		Action:         ActionCursorPosition,
		UserID:         s.joined.userID,
		UserName:       s.joined.userName,
		CursorPosition: message.CursorPosition,
		Selection:      message.Selection,
	})
	if err != nil {
		h.logger.Error("cursor broadcast encode failed", zap.Error(err))
		return
	}
	h.broadcastRoom(s.joined.documentID, payload, s)
}

func (h *Hub) handleDelta(s *session, message inboundMessage) {
	if s.joined == nil {
		h.logger.Warn("delta before join")
		return
	}
	if len(message.Delta) == 0 {
		return
	}

	delta := message.Delta
	// Clients sometimes double-encode the delta as a JSON string; unwrap it
	// so downstream consumers always receive structured data.
	if delta[0] == '"' {
		var text string
		if err := json.Unmarshal(delta, &text); err != nil {
			h.logger.Warn("invalid delta payload", zap.Error(err))
			return
		}
		if !json.Valid([]byte(text)) {
			h.logger.Warn("invalid delta payload", zap.String("document_id", s.joined.documentID))
			return
		}
		delta = json.RawMessage(text)
	}

	payload, err := json.Marshal(deltaUpdateMessage{
		Action:     ActionDeltaUpdate,
		DocumentID: s.joined.documentID,
		UserID:     s.joined.userID,
		Delta:      delta,
	})
	if err != nil {
		h.logger.Error("delta broadcast encode failed", zap.Error(err))
		return
	}
	h.broadcastRoom(s.joined.documentID, payload, s)
}

func (h *Hub) dropSession(s *session) {
	if _, live := h.sessions[s]; !live {
		return
	}
	delete(h.sessions, s)
	close(s.send)

	if s.joined == nil {
		return
	}
	remaining := h.registry.Leave(s.joined.documentID, s.joined.userID)
	h.logger.Info("collaborator left",
		zap.String("document_id", s.joined.documentID),
		zap.String("user_id", s.joined.userID))
	if len(remaining) == 0 {
		return
	}
	h.announceCollaborators(s.joined.documentID, remaining)
}

// announceCollaborators broadcasts the presence snapshot to every session in
// the room, the triggering sender included.
func (h *Hub) announceCollaborators(documentID string, collaborators []presence.Collaborator) {
	payload, err := json.Marshal(collaboratorsUpdateMessage{
		Action:        ActionCollaboratorsUpdate,
		Collaborators: collaborators,
	})
	if err != nil {
		h.logger.Error("collaborators broadcast encode failed", zap.Error(err))
		return
	}
	h.broadcastRoom(documentID, payload, nil)
}

// broadcastRoom fans a payload out to every joined session in the room,
// skipping exclude when set. Sessions with a full send buffer drop the
// message rather than stall the hub.
func (h *Hub) broadcastRoom(documentID string, payload []byte, exclude *session) {
	for s := range h.sessions {
		if s == exclude || s.joined == nil || s.joined.documentID != documentID {
			continue
		}
		select {
		case s.send <- payload:
		default:
			h.logger.Warn("dropping relay message for slow consumer",
				zap.String("document_id", documentID),
				zap.String("user_id", s.joined.userID))
		}
	}
}
