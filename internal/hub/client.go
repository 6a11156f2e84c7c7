package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	maxMsgSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The capture surface is public by design; so is the stream.
		return true
	},
}

// controlMessage is what a subscriber sends to manage its room set.
type controlMessage struct {
	Action string `json:"action"` // "join" or "leave"
	Room   string `json:"room"`
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// HandleWebSocket upgrades the connection and runs it until disconnect.
// The new member belongs to no rooms until it sends a join message.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("hub: websocket upgrade failed", "error", err.Error())
		return
	}

	c := &client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
	}
	c.send = h.add(c.id)

	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("hub: websocket read", "member", c.id, "error", err.Error())
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendEvent(Event{Event: "error", Data: "invalid message"})
			continue
		}

		switch msg.Action {
		case "join":
			if msg.Room == "" {
				c.sendEvent(Event{Event: "error", Data: "room is required"})
				continue
			}
			c.hub.join(c.id, msg.Room)
			c.sendEvent(Event{Event: "room_joined", Room: msg.Room})
		case "leave":
			if msg.Room == "" {
				continue
			}
			c.hub.leave(c.id, msg.Room)
			c.sendEvent(Event{Event: "room_left", Room: msg.Room})
		default:
			c.sendEvent(Event{Event: "error", Data: "unknown action"})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues a direct event to this member only.
func (c *client) sendEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
