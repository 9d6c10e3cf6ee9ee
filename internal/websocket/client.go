package websocket

import (
	"github.com/gorilla/websocket"
)

// Client is one open connection of a user. A user may hold several at once;
// the hub groups them by UserID.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	UserID int64
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		UserID: userID,
	}
}

// ReadPump drains inbound frames until the peer goes away. The server never
// consumes client messages; reading only detects the close.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Int64("user_id", c.UserID).Msg("websocket read ended")
			}
			return
		}
	}
}

// WritePump forwards hub events to the connection until the send channel is
// closed by the hub or the write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.log.Debug().Err(err).Int64("user_id", c.UserID).Msg("websocket write failed")
			return
		}
	}
}
