// Package streaming fans out orchestrator phase updates and agent output
// chunks to WebSocket clients in real time, grounded on the teacher's ACP
// streaming hub.
package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Event is one message pushed to a subscribed WebSocket client: either an
// orchestrator phase boundary or a raw provider output chunk.
type Event struct {
	Kind        string                  `json:"kind"` // "phase" or "chunk"
	WorkspaceID string                  `json:"workspace_id"`
	Phase       *orchestrator.PhaseUpdate `json:"phase,omitempty"`
	AgentID     string                  `json:"agent_id,omitempty"`
	Chunk       string                  `json:"chunk,omitempty"`
}

// Client is a single WebSocket connection, subscribed to zero or more
// workspaces.
type Client struct {
	ID          string
	conn        *websocket.Conn
	workspaces  map[string]bool
	send        chan []byte
	hub         *Hub
	mu          sync.RWMutex
	log         *logger.Logger
}

// NewClient wraps an upgraded connection as a hub-managed client.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:         id,
		conn:       conn,
		workspaces: make(map[string]bool),
		send:       make(chan []byte, 256),
		hub:        hub,
		log:        log.With(zap.String("client_id", id)),
	}
}

// Subscribe adds a workspace to this client's interest set and registers it
// with the hub's routing table.
func (c *Client) Subscribe(workspaceID string) {
	c.mu.Lock()
	c.workspaces[workspaceID] = true
	c.mu.Unlock()
	c.hub.subscribeClient(c, workspaceID)
}

// Unsubscribe removes a workspace from this client's interest set.
func (c *Client) Unsubscribe(workspaceID string) {
	c.mu.Lock()
	delete(c.workspaces, workspaceID)
	c.mu.Unlock()
	c.hub.unsubscribeClient(c, workspaceID)
}

// ReadPump drains inbound control frames (subscribe/unsubscribe messages and
// pings) until the connection closes, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var cmd struct {
			Action      string `json:"action"`
			WorkspaceID string `json:"workspace_id"`
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.Subscribe(cmd.WorkspaceID)
		case "unsubscribe":
			c.Unsubscribe(cmd.WorkspaceID)
		}
	}
}

// WritePump drains the client's outbound buffer to the socket and sends
// periodic pings, until the buffer is closed (by the hub, on unregister).
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Hub fans out Events to subscribed clients via a single goroutine, the
// same register/unregister/broadcast channel pattern as the teacher's ACP
// streaming hub.
type Hub struct {
	clients           map[*Client]bool
	workspaceClients  map[string]map[*Client]bool
	register          chan *Client
	unregister        chan *Client
	broadcast         chan broadcastMessage
	subscribeCh       chan subscribeRequest
	unsubscribeCh     chan subscribeRequest

	mu  sync.RWMutex
	log *logger.Logger
}

type broadcastMessage struct {
	workspaceID string
	event       Event
}

type subscribeRequest struct {
	client      *Client
	workspaceID string
}

// NewHub constructs an idle Hub; call Run to start its dispatch loop.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		clients:          make(map[*Client]bool),
		workspaceClients: make(map[string]map[*Client]bool),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		broadcast:        make(chan broadcastMessage, 256),
		subscribeCh:      make(chan subscribeRequest),
		unsubscribeCh:    make(chan subscribeRequest),
		log:              log.With(zap.String("component", "streaming_hub")),
	}
}

// Run processes register/unregister/broadcast/subscribe traffic until ctx
// is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("streaming hub started")
	defer h.log.Info("streaming hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.workspaceClients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for wsID := range client.workspaces {
					h.removeFromWorkspaceLocked(client, wsID)
				}
			}
			h.mu.Unlock()

		case req := <-h.subscribeCh:
			h.mu.Lock()
			if _, ok := h.workspaceClients[req.workspaceID]; !ok {
				h.workspaceClients[req.workspaceID] = make(map[*Client]bool)
			}
			h.workspaceClients[req.workspaceID][req.client] = true
			h.mu.Unlock()

		case req := <-h.unsubscribeCh:
			h.mu.Lock()
			h.removeFromWorkspaceLocked(req.client, req.workspaceID)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := h.workspaceClients[msg.workspaceID]
			h.mu.RUnlock()
			if len(targets) == 0 {
				continue
			}
			data, err := json.Marshal(msg.event)
			if err != nil {
				h.log.Error("failed to marshal streaming event", zap.Error(err))
				continue
			}
			for client := range targets {
				select {
				case client.send <- data:
				default:
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.removeFromWorkspaceLocked(client, msg.workspaceID)
					h.mu.Unlock()
				}
			}
		}
	}
}

func (h *Hub) removeFromWorkspaceLocked(client *Client, workspaceID string) {
	if clients, ok := h.workspaceClients[workspaceID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.workspaceClients, workspaceID)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) { h.register <- client }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

func (h *Hub) subscribeClient(client *Client, workspaceID string) {
	h.subscribeCh <- subscribeRequest{client: client, workspaceID: workspaceID}
}

func (h *Hub) unsubscribeClient(client *Client, workspaceID string) {
	h.unsubscribeCh <- subscribeRequest{client: client, workspaceID: workspaceID}
}

// BroadcastPhase fans an orchestrator.PhaseUpdate out to every client
// subscribed to workspaceID. Suitable as an orchestrator.PhaseCallback once
// partially applied with the workspace id.
func (h *Hub) BroadcastPhase(workspaceID string, update orchestrator.PhaseUpdate) {
	h.broadcast <- broadcastMessage{workspaceID: workspaceID, event: Event{
		Kind:        "phase",
		WorkspaceID: workspaceID,
		Phase:       &update,
		AgentID:     update.AgentID,
	}}
}

// BroadcastChunk fans a raw streaming output chunk out to a workspace's
// subscribers, for providers that support RunStreaming.
func (h *Hub) BroadcastChunk(workspaceID, agentID, chunk string) {
	h.broadcast <- broadcastMessage{workspaceID: workspaceID, event: Event{
		Kind:        "chunk",
		WorkspaceID: workspaceID,
		AgentID:     agentID,
		Chunk:       chunk,
	}}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WorkspaceSubscriberCount reports how many clients are subscribed to a
// given workspace.
func (h *Hub) WorkspaceSubscriberCount(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workspaceClients[workspaceID])
}
