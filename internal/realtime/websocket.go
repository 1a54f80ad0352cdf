// internal/realtime/websocket.go
package realtime

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// WebSocketConn wraps websocket.Conn so the hub does not depend on the transport.
type WebSocketConn struct {
	Conn *websocket.Conn
	mu   sync.Mutex
}

func NewWebSocketConn(c *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{Conn: c}
}

func (w *WebSocketConn) WriteText(msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteMessage(websocket.TextMessage, msg)
}

// WritePump drains the client's send channel onto the socket until the hub closes it.
func (c *Client) WritePump() {
	for msg := range c.Send {
		if err := c.Conn.WriteText(msg); err != nil {
			log.Printf("[WS] write error for client %s: %v", c.ID, err)
			return
		}
	}
}
