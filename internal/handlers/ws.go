package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 90 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Connections carry no authority until the auth handshake.
		return true
	},
}

// ClientMessage is a frame sent by the browser.
type ClientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// ControlMessage is a non-snapshot frame sent to the browser.
type ControlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

var (
	authOKFrame = mustMarshal(ControlMessage{Type: "auth_ok"})
)

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// WebSocket upgrades the connection and registers it unbound. The client
// binds it with {"type":"auth","token":...}; afterwards it receives the
// owner's task array every time the list changes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := h.hub.Register()
	defer h.hub.Unregister(client)

	go h.writePump(conn, client)

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "auth":
			h.bindClient(client, msg.Token)
		default:
			// Ignore unknown types
		}
	}
}

func (h *Handler) bindClient(client *services.Client, token string) {
	sess, err := h.sessions.Resolve(token)
	if err != nil {
		h.hub.Unbind(client)
		client.Enqueue(mustMarshal(ControlMessage{Type: "auth_error", Message: err.Error()}))
		return
	}
	h.hub.Bind(client, sess.OwnerKey)
	client.Enqueue(authOKFrame)
}

// writePump is the only goroutine that writes to conn.
func (h *Handler) writePump(conn *websocket.Conn, client *services.Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		case <-client.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
