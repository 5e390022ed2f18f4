package models

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one live websocket connection. SessionID is the transient
// session handle minted on connect, UserID the stable identity from the
// verified token.
type Client struct {
	Conn      *websocket.Conn
	SessionID string
	UserID    string

	mu sync.Mutex
}

// Send writes a JSON frame. Writes are serialized because the ping
// goroutine and room broadcasts share the connection.
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Ping sends a websocket ping frame.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *Client) Close() error {
	return c.Conn.Close()
}
