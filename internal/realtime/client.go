package realtime

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may go silent before it is stale.
	pongWait = 60 * time.Second
	// pingPeriod must beat pongWait.
	pingPeriod = 30 * time.Second
	// maxMessageSize bounds inbound subscription updates.
	maxMessageSize = 512 * 1024
)

// expectedCloseCodes are the close frames a well-behaved peer sends.
var expectedCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// Subscription narrows what a client receives. Clients start wide open
// (AllEvents) and may send a replacement filter as a JSON frame at any
// time.
type Subscription struct {
	AllEvents  bool        `json:"all_events"`
	EventTypes []EventType `json:"event_types"`
	UserIDs    []string    `json:"user_ids"`
	MinScore   float64     `json:"min_score"`
}

// matches reports whether ev passes the filter. Events carry their
// user_id and score inside Data; an event with no user cannot match a
// user filter.
func (s Subscription) matches(ev *Event) bool {
	if s.AllEvents {
		return true
	}

	if len(s.EventTypes) > 0 && !slices.Contains(s.EventTypes, ev.Type) {
		return false
	}

	data, _ := ev.Data.(map[string]interface{})

	if len(s.UserIDs) > 0 {
		uid, _ := data["user_id"].(string)
		if !slices.Contains(s.UserIDs, uid) {
			return false
		}
	}

	if s.MinScore > 0 {
		if score, ok := data["score"].(float64); ok && score < s.MinScore {
			return false
		}
	}

	return true
}

// Client is one WebSocket subscriber. The hub writes into send; the
// write pump drains it onto the wire.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu  sync.RWMutex
	sub Subscription
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}
}

func (c *Client) wants(ev *Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.matches(ev)
}

func (c *Client) setSubscription(sub Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

// readPump consumes inbound frames: pongs keep the connection alive, and
// any JSON frame replaces the subscription. Exits on the first read
// error and hands the client back to the hub.
func (c *Client) readPump() {
	defer func() {
		// After the hub stops, nothing receives on leaves.
		select {
		case c.hub.leaves <- c:
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
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, expectedCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var sub Subscription
		if err := json.Unmarshal(frame, &sub); err != nil {
			c.hub.logger.Debug("ignoring malformed subscription frame", "error", err)
			continue
		}
		c.setSubscription(sub)
	}
}

// writePump moves frames from the send channel onto the wire and pings
// on a timer. A closed send channel means the hub dropped us; answer
// with a close frame and hang up.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
