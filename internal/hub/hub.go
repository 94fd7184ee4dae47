// Package hub is the WebSocket fan-out layer: clients subscribe to one or
// more line IDs and receive that line's full position set on subscribe and
// again on every broadcast (spec.md §6 websocket surface).
// Grounded on drobiAlex-wabus-backend's internal/hub (same
// register/unregister/broadcast channel shape), retargeted from
// geographic tile subscriptions to line-ID subscriptions since this
// network is pushed per line, not per map tile.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"trainpulse/internal/domain"
)

type Client struct {
	ID    string
	Send  chan []byte
	lines map[string]struct{}
	mu    sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		lines: make(map[string]struct{}),
	}
}

func (c *Client) HasLine(lineID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lines[lineID]
	return ok
}

func (c *Client) AddLines(lineIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range lineIDs {
		c.lines[id] = struct{}{}
	}
}

func (c *Client) RemoveLines(lineIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range lineIDs {
		delete(c.lines, id)
	}
}

func (c *Client) GetLines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lines := make([]string, 0, len(c.lines))
	for id := range c.lines {
		lines = append(lines, id)
	}
	return lines
}

// LineUpdate is one line's freshly materialized positions, submitted to
// the hub for fan-out to every client subscribed to that line.
type LineUpdate struct {
	LineID    string
	Positions []domain.Position
}

type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	lineClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []LineUpdate

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		lineClients: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		broadcast:   make(chan []LineUpdate, 256),
		logger:      logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client)

		case updates := <-h.broadcast:
			h.fanout(updates)
		}
	}
}

func (h *Hub) Subscribe(client *Client, lineIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddLines(lineIDs)

	for _, lineID := range lineIDs {
		if h.lineClients[lineID] == nil {
			h.lineClients[lineID] = make(map[*Client]struct{})
		}
		h.lineClients[lineID][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, lineIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveLines(lineIDs)

	for _, lineID := range lineIDs {
		if h.lineClients[lineID] != nil {
			delete(h.lineClients[lineID], client)
			if len(h.lineClients[lineID]) == 0 {
				delete(h.lineClients, lineID)
			}
		}
	}
}

// Broadcast queues one fusion cycle's worth of per-line position updates
// for fan-out. Dropped (not blocked) if the broadcast channel is full, so
// a stalled fan-out never backs up the fusion publisher.
func (h *Hub) Broadcast(updates []LineUpdate) {
	if len(updates) == 0 {
		return
	}
	select {
	case h.broadcast <- updates:
	default:
		h.logger.Warn("broadcast channel full, dropping line updates", "count", len(updates))
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type PositionsMessage struct {
	Type    string            `json:"type"`
	Payload PositionsPayload  `json:"payload"`
}

type PositionsPayload struct {
	Line      string             `json:"line"`
	Positions []domain.Position  `json:"positions"`
}

func (h *Hub) fanout(updates []LineUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, u := range updates {
		clients, ok := h.lineClients[u.LineID]
		if !ok || len(clients) == 0 {
			continue
		}

		msg := PositionsMessage{
			Type: "positions",
			Payload: PositionsPayload{
				Line:      u.LineID,
				Positions: u.Positions,
			},
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}

		for client := range clients {
			select {
			case client.Send <- data:
			default:
				h.logger.Debug("client send buffer full", "client_id", client.ID)
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	for _, lineID := range client.GetLines() {
		if h.lineClients[lineID] != nil {
			delete(h.lineClients[lineID], client)
			if len(h.lineClients[lineID]) == 0 {
				delete(h.lineClients, lineID)
			}
		}
	}

	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.lineClients = make(map[string]map[*Client]struct{})
}
