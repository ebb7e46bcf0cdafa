package ws

import (
	"encoding/json"
	"sync"

	"screenflow/internal/logger"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgScreenChanged MessageType = "screen_changed"
	MsgClosed        MessageType = "response_set_closed"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans out answer engine events to subscribers of a response set
type Hub struct {
	// response set -> connections
	subscribers map[string]map[*Connection]bool

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	disconnect chan string

	log *logger.Logger
}

// Connection represents a WebSocket connection
type Connection struct {
	ResponseSetID string
	Send          chan []byte
	Hub           *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	ResponseSetID string
	Message       *Message
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	h := &Hub{
		subscribers: make(map[string]map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *BroadcastMessage, 256),
		disconnect:  make(chan string, 16),
		log:         log.With("component", "ws_hub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.subscribers[conn.ResponseSetID] == nil {
				h.subscribers[conn.ResponseSetID] = make(map[*Connection]bool)
			}
			h.subscribers[conn.ResponseSetID][conn] = true
			h.mu.Unlock()
			h.log.Debug("subscriber connected", "response_set_id", conn.ResponseSetID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.subscribers[conn.ResponseSetID]; ok && conns[conn] {
				h.drop(conn)
				h.log.Debug("subscriber disconnected", "response_set_id", conn.ResponseSetID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for conn := range h.subscribers[msg.ResponseSetID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()

		case responseSetID := <-h.disconnect:
			h.mu.Lock()
			data, _ := json.Marshal(&Message{Type: MsgClosed, Payload: json.RawMessage(`{}`)})
			for conn := range h.subscribers[responseSetID] {
				select {
				case conn.Send <- data:
				default:
				}
				h.drop(conn)
			}
			h.mu.Unlock()
		}
	}
}

// drop removes conn and closes its send channel; callers hold mu
func (h *Hub) drop(conn *Connection) {
	conns := h.subscribers[conn.ResponseSetID]
	delete(conns, conn)
	close(conn.Send)
	if len(conns) == 0 {
		delete(h.subscribers, conn.ResponseSetID)
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Subscribers reports how many connections follow a response set
func (h *Hub) Subscribers(responseSetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[responseSetID])
}

// BroadcastToResponseSet sends a message to every subscriber (implements service.Broadcaster)
func (h *Hub) BroadcastToResponseSet(responseSetID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		ResponseSetID: responseSetID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}

// DisconnectResponseSet closes every subscription of a deleted response set (implements service.Broadcaster)
func (h *Hub) DisconnectResponseSet(responseSetID string) {
	h.disconnect <- responseSetID
}
