// Package connection upgrades websocket requests, authenticates them
// and pumps participant actions into the orchestrator.
package connection

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gbserver/game"
	"gbserver/game/broadcast"
	"gbserver/game/final"
	"gbserver/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	pingPeriod   = 10 * time.Second
	pongDeadline = 60 * time.Second
)

// inboundMessage is one participant action frame.
type inboundMessage struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"` // kick-vote: nominated identity
	Choice string `json:"choice,omitempty"` // final-choice: split | steal
	Text   string `json:"text,omitempty"`   // message: chat text
}

// HandleConnections verifies the bearer token, upgrades to websocket,
// mints a session handle and seats the participant in a room.
func HandleConnections(ctx context.Context, w http.ResponseWriter, r *http.Request,
	verifier game.IdentityVerifier, orch *game.Orchestrator, hub *broadcast.Hub, logger *zap.Logger) {

	userID, err := verifier.Verify(r.Header.Get("Authorization"))
	if err != nil {
		logger.Error("authentication failed on connect", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		http.Error(w, "Error upgrading WebSocket", http.StatusInternalServerError)
		return
	}

	client := &models.Client{
		Conn:      conn,
		SessionID: uuid.New().String(),
		UserID:    userID,
	}
	hub.Register(client)

	roomID, err := orch.Join(ctx, client.SessionID, userID)
	if err != nil {
		logger.Error("join failed", zap.String("userID", userID), zap.Error(err))
		hub.CloseSession(client.SessionID)
		return
	}

	// Hand the transient session handle back to the client.
	if err := client.Send(broadcast.Frame{Type: "session", Data: map[string]string{
		"sessionID": client.SessionID,
		"userID":    userID,
		"roomID":    roomID,
	}}); err != nil {
		logger.Error("failed to send session frame", zap.Error(err))
	}

	// Read-side state is configured before any goroutine reads: gorilla
	// allows one concurrent reader, and the pong handler runs inside it.
	conn.SetReadDeadline(time.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongDeadline))
		return nil
	})

	go readLoop(client, orch, hub, logger)
	go pingLoop(client, logger)
}

// readLoop dispatches inbound frames until the connection dies, then
// reports the disconnect to the orchestrator.
func readLoop(client *models.Client, orch *game.Orchestrator, hub *broadcast.Hub, logger *zap.Logger) {
	defer func() {
		hub.Unregister(client.SessionID)
		client.Close()
		orch.Leave(context.Background(), client.SessionID)
		logger.Info("client disconnected",
			zap.String("sessionID", client.SessionID),
			zap.String("userID", client.UserID),
		)
	}()

	for {
		var msg inboundMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			return
		}

		// Votes, choices and messages are fire-and-forget: a late or
		// misdirected action is logged and dropped, the session has no
		// response channel for it.
		ctx := context.Background()
		switch msg.Type {
		case "kick-vote":
			if err := orch.Vote(ctx, client.SessionID, msg.Target); err != nil {
				logger.Debug("kick vote ignored", zap.String("userID", client.UserID), zap.Error(err))
			}
		case "final-choice":
			choice := final.Choice(msg.Choice)
			if !choice.Valid() {
				logger.Debug("unknown choice ignored", zap.String("choice", msg.Choice))
				continue
			}
			if err := orch.Choice(ctx, client.SessionID, choice); err != nil {
				logger.Debug("final choice ignored", zap.String("userID", client.UserID), zap.Error(err))
			}
		case "message":
			if err := orch.Message(ctx, client.SessionID, msg.Text); err != nil {
				logger.Debug("message ignored", zap.String("userID", client.UserID), zap.Error(err))
			}
		default:
			logger.Debug("unknown frame type", zap.String("type", msg.Type))
		}
	}
}

// pingLoop keeps the connection alive. Pongs reset the read deadline
// via the handler installed before the loops started; a missed pong
// window expires the deadline and with it the read loop.
func pingLoop(client *models.Client, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := client.Ping(); err != nil {
			return
		}
	}
}
