package chat

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Frames over maxFrameSize are rejected with an error frame and the
	// connection stays open; readHardLimit is the transport ceiling past
	// which gorilla closes the socket.
	maxFrameSize  = 4096
	readHardLimit = 64 * 1024

	sendQueueDepth = 64
)

// conn is one WebSocket attached to one room.
type conn struct {
	ws     *websocket.Conn
	roomID string
	userID string
	send   chan []byte
	done   chan struct{}
}

func newConn(ws *websocket.Conn, roomID, userID string) *conn {
	return &conn{
		ws:     ws,
		roomID: roomID,
		userID: userID,
		send:   make(chan []byte, sendQueueDepth),
		done:   make(chan struct{}),
	}
}

// trySend queues payload without blocking. A receiver that cannot keep up
// loses the connection, not the room.
func (c *conn) trySend(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.close()
	}
}

func (c *conn) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// readPump drains client frames, handing each to onFrame. The read deadline
// doubles as the 60 second liveness watchdog, refreshed by pongs.
func (c *conn) readPump(onFrame func(payload []byte)) {
	defer c.close()
	c.ws.SetReadLimit(readHardLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		onFrame(payload)
	}
}

// writePump serializes all writes to the socket: queued payloads and pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
