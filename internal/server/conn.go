package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Repeated rate-limit violations before the connection is dropped.
	maxRateViolations = 5

	sendBufferSize = 256
)

// Conn is one upgraded WebSocket connection, bound to a single room. It
// implements room.Conn: the room goroutine enqueues outbound frames without
// blocking, and the write pump drains them.
type Conn struct {
	ws      *websocket.Conn
	room    *room.Room
	limiter *MessageLimiter
	ip      string

	maxMessageBytes int64

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewConn wraps an upgraded socket for the given room.
func NewConn(ws *websocket.Conn, r *room.Room, limiter *MessageLimiter, ip string, maxMessageBytes int64) *Conn {
	return &Conn{
		ws:              ws,
		room:            r,
		limiter:         limiter,
		ip:              ip,
		maxMessageBytes: maxMessageBytes,
		send:            make(chan []byte, sendBufferSize),
	}
}

// ReadPump reads inbound frames and feeds them to the room's mailbox,
// preserving this connection's FIFO order.
func (c *Conn) ReadPump() {
	defer func() {
		c.room.Detach(c)
		c.Close()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.maxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.LogError("read error from %s: %v", c.ip, err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeRateLimit))
			if c.limiter.Violations() > maxRateViolations {
				logger.LogInfo("connection from %s dropped after repeated rate violations", c.ip)
				return
			}
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed frame: logged, dropped, connection stays open.
			logger.LogInfo("invalid message from %s: %v", c.ip, err)
			c.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeInvalidMessage))
			continue
		}

		c.room.Dispatch(c, msg)
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// pings. A slow or broken peer only stalls its own pump.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send enqueues one serialized frame. A full buffer means the peer is too
// slow to keep up; the connection is closed rather than stalling the room.
func (c *Conn) Send(data []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	defer c.mu.Unlock()

	select {
	case c.send <- data:
		return true
	default:
		c.closeLocked()
		logger.LogInfo("connection from %s dropped, send buffer full", c.ip)
		return false
	}
}

// SendMessage encodes and enqueues a message.
func (c *Conn) SendMessage(msg *protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		logger.LogError("encode %s: %v", msg.Type, err)
		return
	}
	c.Send(data)
}

// Close stops accepting outbound frames. Buffered frames are still flushed
// by the write pump before the socket closes.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
