package serve

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// EventType classifies a progress event.
type EventType string

const (
	EventStarted EventType = "started"
	EventLog     EventType = "log"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is sent to WebSocket subscribers while imports run.
type Event struct {
	Job     string    `json:"job"`
	Part    string    `json:"part"`
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
}

// EventHub manages WebSocket subscribers for import progress.
type EventHub struct {
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// NewEventHub creates a hub with no subscribers.
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local service, browser tooling connects cross-origin
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection.
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Keep connection alive until client disconnects
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Started announces that an import began.
func (h *EventHub) Started(job, part string) {
	h.broadcast(Event{Job: job, Part: part, Type: EventStarted})
}

// Log forwards one generator progress line.
func (h *EventHub) Log(job, part, line string) {
	h.broadcast(Event{Job: job, Part: part, Type: EventLog, Message: line})
}

// Done announces a finished import; message carries the library name.
func (h *EventHub) Done(job, part, message string) {
	h.broadcast(Event{Job: job, Part: part, Type: EventDone, Message: message})
}

// Error announces a failed import.
func (h *EventHub) Error(job, part, message string) {
	h.broadcast(Event{Job: job, Part: part, Type: EventError, Message: message})
}

// broadcast sends an event to all connected clients. Writes stay under
// the lock because concurrent imports broadcast concurrently and a
// websocket connection does not support concurrent writers.
func (h *EventHub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.clients, client)
			client.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
