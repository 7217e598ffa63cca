package websocket

import (
	"sync"
	"time"

	"libraryhub/internal/events"
	"libraryhub/internal/policy"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client represents a single connected WebSocket client
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	actor policy.Actor

	mu       sync.RWMutex
	channels map[events.Channel]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, actor policy.Actor, channels []events.Channel) *Client {
	c := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		actor:    actor,
		channels: make(map[events.Channel]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return c
}

func (c *Client) match(e events.Event) []events.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return admitted(c.actor, c.channels, e)
}

// control is a client -> server message.
type control struct {
	Action  string         `json:"action"`
	Channel events.Channel `json:"channel"`
}

// reply acknowledges a control message.
type reply struct {
	Event   string         `json:"event"`
	Channel events.Channel `json:"channel"`
	Error   string         `json:"error,omitempty"`
}

func (c *Client) handle(msg []byte) {
	var ctl control
	if err := json.Unmarshal(msg, &ctl); err != nil {
		c.reply(reply{Event: "error", Error: "malformed message"})
		return
	}

	switch ctl.Action {
	case "subscribe":
		if !policy.Authorize(c.actor, ctl.Channel) {
			c.reply(reply{Event: "subscription_error", Channel: ctl.Channel, Error: "forbidden"})
			return
		}
		c.mu.Lock()
		c.channels[ctl.Channel] = struct{}{}
		c.mu.Unlock()
		c.reply(reply{Event: "subscription_succeeded", Channel: ctl.Channel})
	case "unsubscribe":
		c.mu.Lock()
		delete(c.channels, ctl.Channel)
		c.mu.Unlock()
		c.reply(reply{Event: "unsubscribed", Channel: ctl.Channel})
	case "ping":
		c.reply(reply{Event: "pong"})
	default:
		c.reply(reply{Event: "error", Error: "unknown action"})
	}
}

// reply goes through the hub lock so it never races a close of send.
func (c *Client) reply(r reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps control messages from the WebSocket connection to the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.actor.ID, "error", err)
			}
			return
		}
		c.handle(msg)
	}
}
