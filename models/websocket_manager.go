package models

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketManager handles WebSocket connections and broadcasts
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	log        zerolog.Logger
	mu         sync.Mutex
}

// JobUpdate is the message pushed to dashboard clients on every milestone.
type JobUpdate struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	SessionID string    `json:"session_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(log zerolog.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Start begins the WebSocket manager
func (wsm *WebSocketManager) Start() {
	go func() {
		for {
			select {
			case <-wsm.done:
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.Close()
					delete(wsm.clients, client)
				}
				wsm.mu.Unlock()
				return
			case client := <-wsm.register:
				wsm.mu.Lock()
				wsm.clients[client] = true
				total := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.log.Debug().Int("clients", total).Msg("websocket client connected")
			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				total := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.log.Debug().Int("clients", total).Msg("websocket client disconnected")
			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					err := client.WriteMessage(websocket.TextMessage, message)
					if err != nil {
						wsm.log.Warn().Err(err).Msg("failed to send message to websocket client")
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			}
		}
	}()
}

// Stop closes every client and ends the manager loop.
func (wsm *WebSocketManager) Stop() {
	close(wsm.done)
}

// ClientCount returns the number of connected clients.
func (wsm *WebSocketManager) ClientCount() int {
	wsm.mu.Lock()
	defer wsm.mu.Unlock()
	return len(wsm.clients)
}

// BroadcastJobUpdate sends a job update to all connected clients
func (wsm *WebSocketManager) BroadcastJobUpdate(job JobSnapshot) {
	update := JobUpdate{
		Type:      "job_update",
		JobID:     job.ID,
		SessionID: job.SessionID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		Timestamp: time.Now(),
	}
	if job.Status == StatusFailed {
		update.Error = job.ErrorMessage
	}
	if job.Artifact != nil {
		update.Artifact = job.Artifact.Name
	}

	jsonData, err := json.Marshal(update)
	if err != nil {
		wsm.log.Error().Err(err).Msg("failed to marshal job update")
		return
	}

	select {
	case wsm.broadcast <- jsonData:
	case <-wsm.done:
	}
}

// RegisterClient registers a new WebSocket client
func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	select {
	case wsm.register <- conn:
	case <-wsm.done:
		conn.Close()
	}
}

// UnregisterClient unregisters a WebSocket client
func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}
