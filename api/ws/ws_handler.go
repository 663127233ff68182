package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
)

const (
	subprotocol    = "letterbox-v1"
	requestTimeout = 5 * time.Second
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if requiredOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == requiredOrigin
		},
		Subprotocols: []string{subprotocol},
	}
}

// ServeWS handles websocket requests from the peer. The session token rides
// in the second Sec-WebSocket-Protocol entry.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	identity, authErr := h.Service.AuthenticateToken(r.Context(), token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.WithError(err).Warn("Failed to upgrade ws connection")
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, identity, h.HandleWsMessage)
	h.Hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)

	// Connecting counts as being active
	h.recordHeartbeat(client)
}

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type letterSummary struct {
	Id          string              `json:"id"`
	SenderId    string              `json:"senderId"`
	Status      models.LetterStatus `json:"status"`
	DeliveredAt time.Time           `json:"deliveredAt"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		logging.Log.WithError(err).Debug("Invalid ws JSON")
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "heartbeat":
		resp = responseMessage{
			Type: "heartbeat_response",
			Data: map[string]any{"success": h.recordHeartbeat(client)},
		}

	case "inbox":
		resp = h.handleInbox(client)

	default:
		logging.Log.Debugf("Unknown ws message type: %v", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			logging.Log.WithError(err).Error("Error marshaling ws response")
			return
		}
		select {
		case client.Send <- respBytes:
		default:
		}
	}
}

func (h *Handler) recordHeartbeat(client *Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := h.Service.RecordHeartbeat(ctx, client.identity.Id); err != nil {
		logging.Log.WithError(err).Warn("RecordHeartbeat failed")
		return false
	}
	return true
}

func (h *Handler) handleInbox(client *Client) responseMessage {
	resp := responseMessage{Type: "inbox_response"}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	letters, err := h.Service.ListInbox(ctx, client.identity)
	if err != nil {
		logging.Log.WithError(err).Warn("ListInbox failed")
		resp.Data = map[string]any{"success": false}
		return resp
	}

	summaries := make([]letterSummary, 0, len(letters))
	for _, l := range letters {
		summaries = append(summaries, letterSummary{
			Id:          l.Id,
			SenderId:    l.SenderId,
			Status:      l.Status,
			DeliveredAt: l.DeliveredAt,
		})
	}
	resp.Data = map[string]any{"success": true, "letters": summaries}
	return resp
}
