package signaling

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// sendChannelCapacity bounds a client's outbound queue; a client that
// falls this far behind gets disconnected rather than backing up the
// hub.
const sendChannelCapacity = 256

// Client wraps one WebSocket connection for one room/user pair.
type Client struct {
	ID   string
	Room id.RoomID
	User id.UserID
	Conn *websocket.Conn
	Send chan Message

	readLimit    int64
	pongTimeout  time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	logger    *zap.Logger

	// OnMessage is invoked from ReadPump for every successfully decoded
	// inbound message.
	OnMessage func(*Client, Message)
	// OnDisconnect is invoked once ReadPump returns, win or lose.
	OnDisconnect func(*Client)
}

// ClientOptions configures the read/write loop timeouts, normally
// sourced from internal/config.
type ClientOptions struct {
	ReadLimit    int64
	PongTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(connID string, room id.RoomID, user id.UserID, conn *websocket.Conn, opts ClientOptions, logger *zap.Logger) *Client {
	return &Client{
		ID:           connID,
		Room:         room,
		User:         user,
		Conn:         conn,
		Send:         make(chan Message, sendChannelCapacity),
		readLimit:    opts.ReadLimit,
		pongTimeout:  opts.PongTimeout,
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed.Store(true)
		close(c.Send)
		c.sendMu.Unlock()
	})
}

// ReadPump decodes inbound messages until the connection errors or
// closes, then runs OnDisconnect. Must run in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		if c.OnDisconnect != nil {
			c.OnDisconnect(c)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		msg.Timestamp = time.Now()
		if c.OnMessage != nil {
			c.OnMessage(c, msg)
		}
	}
}

// WritePump drains Send to the connection and keeps it alive with
// periodic pings. Must run in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				c.logger.Warn("websocket write error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage enqueues msg for delivery, dropping it if the client is
// closed or its queue is full. Holds sendMu so a concurrent closeSend
// can't close c.Send between the closed check and the send.
func (c *Client) SendMessage(msg Message) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return
	}
	select {
	case c.Send <- msg:
	default:
		c.logger.Warn("client send queue full, dropping message", zap.String("client_id", c.ID))
	}
}

// SendError delivers an ErrorPayload to the client.
func (c *Client) SendError(message string) {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	c.SendMessage(Message{Type: MessageTypeError, Payload: payload})
}
