package kds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
)

// Event types
const (
	EventNotification = "notification"
	EventOrderUpdate  = "order_update"
)

const writeWait = 5 * time.Second

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub holds the connected staff screens together with the principal each
// one authenticated as. Messages only go to screens of the same tenant.
type Hub struct {
	clients map[Conn]models.Principal
	mutex   sync.Mutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[Conn]models.Principal)}
}

// RegisterClient adds a connection for p.
func (h *Hub) RegisterClient(conn Conn, p models.Principal) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = p
	utils.InfoLogger.Printf("Screen connected: %s (%s) tenant %s", p.Subject, p.Role, p.TenantID)
}

// UnregisterClient drops and closes the connection.
func (h *Hub) UnregisterClient(conn Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[conn]; !ok {
		return
	}
	delete(h.clients, conn)
	conn.Close()
}

// Count returns the number of connected screens.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Deliver pushes n to every screen of its tenant whose principal the
// notification targets. It returns how many screens received it.
func (h *Hub) Deliver(n models.Notification) int {
	target := n.Target()
	return h.send(Message{Event: EventNotification, Data: n}, func(p models.Principal) bool {
		return p.TenantID == n.TenantID && target.Matches(p)
	})
}

// BroadcastOrderUpdate pushes the stored order to every screen of its
// tenant.
func (h *Hub) BroadcastOrderUpdate(order models.Order) int {
	return h.send(Message{Event: EventOrderUpdate, Data: order}, func(p models.Principal) bool {
		return p.TenantID == order.TenantID
	})
}

// send writes msg to the matching screens. Writes happen under the hub lock,
// which keeps at most one writer per connection.
func (h *Hub) send(msg Message, match func(models.Principal) bool) int {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling message: %v", err)
		return 0
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	sent := 0
	for conn, p := range h.clients {
		if !match(p) {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.ErrorLogger.Printf("Error sending %s to %s: %v", msg.Event, p.Subject, err)
			delete(h.clients, conn)
			conn.Close()
			continue
		}
		sent++
	}
	return sent
}
