package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// WSHandler streams certificate events to admin dashboards.
type WSHandler struct {
	admin    AdminUseCases
	upgrader websocket.Upgrader
}

func NewWSHandler(admin AdminUseCases, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		admin: admin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades an authenticated request and forwards feed events until
// the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	updates, cancel, err := h.admin.Subscribe(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "ping":
			reply = outboundMessage[any]{Type: "pong", Payload: struct{}{}}
		case "stats":
			stats, err := h.admin.Stats(r.Context())
			if err != nil {
				reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				break
			}
			reply = outboundMessage[any]{Type: "stats", Payload: stats}
		default:
			reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
