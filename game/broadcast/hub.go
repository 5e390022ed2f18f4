// Package broadcast fans game events out to connected websocket
// clients. The hub is a plain session→connection map; room targeting is
// resolved by the orchestrator.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"gbserver/models"
)

// Frame is the outbound wire envelope.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub tracks all live clients by session handle.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*models.Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*models.Client),
		logger:  logger,
	}
}

// Register adds a freshly connected client.
func (h *Hub) Register(client *models.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.SessionID] = client
	h.logger.Info("client registered",
		zap.String("sessionID", client.SessionID),
		zap.String("userID", client.UserID),
	)
}

// Unregister drops a client without closing its connection.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, sessionID)
}

// Emit sends one event frame to every listed session. Sessions that
// already went away are skipped.
func (h *Hub) Emit(sessionIDs []string, event string, payload interface{}) {
	frame := Frame{Type: event, Data: payload}
	for _, sessionID := range sessionIDs {
		h.mu.RLock()
		client, ok := h.clients[sessionID]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		if err := client.Send(frame); err != nil {
			h.logger.Error("failed to send event",
				zap.String("sessionID", sessionID),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
}

// CloseSession force-disconnects a session, e.g. at room teardown.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	client, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}
	if err := client.Close(); err != nil {
		h.logger.Debug("close on already closed connection", zap.String("sessionID", sessionID))
	}
}
