package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sarvinsurya/docs-sync-backend/internal/presence"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const readTimeout = 2 * time.Second

func newTestHub(t *testing.T, cfg HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = presence.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	hub, err := NewHub(cfg)
	if err != nil {
		t.Fatalf("failed to construct hub: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	return hub, server
}

func dialRelay(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, payload map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}
}

type receivedMessage struct {
	Action         string                  `json:"action"`
	DocumentID     string                  `json:"documentId"`
	UserID         string                  `json:"userId"`
	UserName       string                  `json:"userName"`
	Collaborators  []presence.Collaborator `json:"collaborators"`
	CursorPosition json.RawMessage         `json:"cursorPosition"`
	Selection      json.RawMessage         `json:"selection"`
	Delta          json.RawMessage         `json:"delta"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) receivedMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var message receivedMessage
	if err := json.Unmarshal(data, &message); err != nil {
		t.Fatalf("failed to decode message %q: %v", data, err)
	}
	return message
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, received %q", data)
	}
	var netErr interface{ Timeout() bool }
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

func join(t *testing.T, conn *websocket.Conn, documentID, userID, userName string) {
	t.Helper()
	sendJSON(t, conn, map[string]interface{}{
		"action":     ActionJoin,
		"documentId": documentID,
		"userId":     userID,
		"userName":   userName,
	})
}

func TestJoinAnnouncesCollaboratorsToWholeRoom(t *testing.T) {
	_, server := newTestHub(t, HubConfig{})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")

	first := readEnvelope(t, alice)
	if first.Action != ActionCollaboratorsUpdate {
		t.Fatalf("expected collaborators_update, got %s", first.Action)
	}
	if len(first.Collaborators) != 1 || first.Collaborators[0].UserID != "user-1" {
		t.Fatalf("unexpected collaborators: %+v", first.Collaborators)
	}

	bob := dialRelay(t, server)
	join(t, bob, "doc-1", "user-2", "Bob")

	// Both the joiner and the existing member see the refreshed list.
	for _, conn := range []*websocket.Conn{alice, bob} {
		update := readEnvelope(t, conn)
		if update.Action != ActionCollaboratorsUpdate {
			t.Fatalf("expected collaborators_update, got %s", update.Action)
		}
		if len(update.Collaborators) != 2 {
			t.Fatalf("expected 2 collaborators, got %+v", update.Collaborators)
		}
	}
}

func TestJoinIsScopedToRoom(t *testing.T) {
	_, server := newTestHub(t, HubConfig{})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")
	readEnvelope(t, alice)

	other := dialRelay(t, server)
	join(t, other, "doc-2", "user-9", "Outsider")
	readEnvelope(t, other)

	expectSilence(t, alice)
}

func TestCursorPositionExcludesSender(t *testing.T) {
	_, server := newTestHub(t, HubConfig{})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")
	readEnvelope(t, alice)

	bob := dialRelay(t, server)
	join(t, bob, "doc-1", "user-2", "Bob")
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	sendJSON(t, alice, map[string]interface{}{
		"action":         ActionCursorPosition,
		"cursorPosition": 42,
		"selection":      map[string]interface{}{"start": 40, "end": 42},
	})

	received := readEnvelope(t, bob)
	if received.Action != ActionCursorPosition {
		t.Fatalf("expected cursor_position, got %s", received.Action)
	}
	if received.UserID != "user-1" || received.UserName != "Alice" {
		t.Fatalf("unexpected sender identity: %+v", received)
	}
	if string(received.CursorPosition) != "42" {
		t.Fatalf("unexpected cursor position: %s", received.CursorPosition)
	}

	expectSilence(t, alice)
}

func TestDeltaIsRetaggedAndExcludesSender(t *testing.T) {
	_, server := newTestHub(t, HubConfig{})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")
	readEnvelope(t, alice)

	bob := dialRelay(t, server)
	join(t, bob, "doc-1", "user-2", "Bob")
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	sendJSON(t, alice, map[string]interface{}{
		"action": ActionDelta,
		"delta":  map[string]interface{}{"ops": []interface{}{map[string]interface{}{"insert": "hi"}}},
	})

	received := readEnvelope(t, bob)
	if received.Action != ActionDeltaUpdate {
		t.Fatalf("expected delta_update, got %s", received.Action)
	}
	if received.DocumentID != "doc-1" || received.UserID != "user-1" {
		t.Fatalf("unexpected delta envelope: %+v", received)
	}
	if !strings.Contains(string(received.Delta), `"insert":"hi"`) {
		t.Fatalf("unexpected delta payload: %s", received.Delta)
	}

	expectSilence(t, alice)
}

func TestStringEncodedDeltaIsUnwrapped(t *testing.T) {
	_, server := newTestHub(t, HubConfig{})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")
	readEnvelope(t, alice)

	bob := dialRelay(t, server)
	join(t, bob, "doc-1", "user-2", "Bob")
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	sendJSON(t, alice, map[string]interface{}{
		"action": ActionDelta,
		"delta":  `{"ops":[{"retain":3}]}`,
	})

	received := readEnvelope(t, bob)
	if received.Action != ActionDeltaUpdate {
		t.Fatalf("expected delta_update, got %s", received.Action)
	}
	var decoded struct {
		Ops []map[string]interface{} `json:"ops"`
	}
	if err := json.Unmarshal(received.Delta, &decoded); err != nil {
		t.Fatalf("expected structured delta, got %s: %v", received.Delta, err)
	}
	if len(decoded.Ops) != 1 {
		t.Fatalf("unexpected delta ops: %+v", decoded.Ops)
	}

	// An unparseable string delta is dropped, not relayed.
	sendJSON(t, alice, map[string]interface{}{
		"action": ActionDelta,
		"delta":  "not a delta",
	})
	expectSilence(t, bob)
}

func TestMalformedAndUnknownMessagesAreIgnored(t *testing.T) {
	_, server := newTestHub(t, HubConfig{})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")
	readEnvelope(t, alice)

	bob := dialRelay(t, server)
	join(t, bob, "doc-1", "user-2", "Bob")
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	if err := alice.WriteMessage(websocket.TextMessage, []byte("this is not json")); err != nil {
		t.Fatalf("failed to send malformed frame: %v", err)
	}
	sendJSON(t, alice, map[string]interface{}{"action": "teleport"})

	// Room-scoped actions sent before join are also dropped.
	carol := dialRelay(t, server)
	sendJSON(t, carol, map[string]interface{}{"action": ActionCursorPosition, "cursorPosition": 1})
	expectSilence(t, bob)

	// The connection survives all of the above.
	sendJSON(t, alice, map[string]interface{}{
		"action":         ActionCursorPosition,
		"cursorPosition": 7,
	})
	received := readEnvelope(t, bob)
	if received.Action != ActionCursorPosition {
		t.Fatalf("expected cursor_position after bad frames, got %s", received.Action)
	}
}

func TestDisconnectAnnouncesRemainingMembers(t *testing.T) {
	registry := presence.NewRegistry()
	_, server := newTestHub(t, HubConfig{Registry: registry})

	alice := dialRelay(t, server)
	join(t, alice, "doc-1", "user-1", "Alice")
	readEnvelope(t, alice)

	bob := dialRelay(t, server)
	join(t, bob, "doc-1", "user-2", "Bob")
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	if err := alice.Close(); err != nil {
		t.Fatalf("failed to close connection: %v", err)
	}

	update := readEnvelope(t, bob)
	if update.Action != ActionCollaboratorsUpdate {
		t.Fatalf("expected collaborators_update, got %s", update.Action)
	}
	if len(update.Collaborators) != 1 || update.Collaborators[0].UserID != "user-2" {
		t.Fatalf("unexpected collaborators after leave: %+v", update.Collaborators)
	}

	deadline := time.Now().Add(readTimeout)
	for {
		if len(registry.Snapshot("doc-1")) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected registry to drop the departed member")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type stubTokens struct {
	subject string
	err     error
}

func (s stubTokens) ValidateToken(string) (string, error) {
	return s.subject, s.err
}

func TestJoinAuthWhenRequired(t *testing.T) {
	_, server := newTestHub(t, HubConfig{
		Tokens:      stubTokens{subject: "user-1"},
		RequireAuth: true,
	})

	impostor := dialRelay(t, server)
	sendJSON(t, impostor, map[string]interface{}{
		"action":     ActionJoin,
		"documentId": "doc-1",
		"userId":     "user-99",
		"userName":   "Mallory",
		"token":      "some-token",
	})
	expectSilence(t, impostor)

	legitimate := dialRelay(t, server)
	sendJSON(t, legitimate, map[string]interface{}{
		"action":     ActionJoin,
		"documentId": "doc-1",
		"userId":     "user-1",
		"userName":   "Alice",
		"token":      "some-token",
	})
	update := readEnvelope(t, legitimate)
	if update.Action != ActionCollaboratorsUpdate {
		t.Fatalf("expected collaborators_update, got %s", update.Action)
	}
	if len(update.Collaborators) != 1 || update.Collaborators[0].UserID != "user-1" {
		t.Fatalf("unexpected collaborators: %+v", update.Collaborators)
	}
}
