// Package hub fans live arrival updates out to WebSocket clients
// subscribed by stop id.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"gtatransit/internal/domain"
)

type Client struct {
	ID    string
	Send  chan []byte
	stops map[string]struct{}
	mu    sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		stops: make(map[string]struct{}),
	}
}

func (c *Client) AddStops(stopIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range stopIDs {
		c.stops[id] = struct{}{}
	}
}

func (c *Client) RemoveStops(stopIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range stopIDs {
		delete(c.stops, id)
	}
}

func (c *Client) Stops() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stops := make([]string, 0, len(c.stops))
	for id := range c.stops {
		stops = append(stops, id)
	}
	return stops
}

type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	stopClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []domain.StopArrivals

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		stopClients: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		broadcast:   make(chan []domain.StopArrivals, 256),
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

func (h *Hub) Subscribe(client *Client, stopIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddStops(stopIDs)

	for _, id := range stopIDs {
		if h.stopClients[id] == nil {
			h.stopClients[id] = make(map[*Client]struct{})
		}
		h.stopClients[id][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, stopIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveStops(stopIDs)

	for _, id := range stopIDs {
		if h.stopClients[id] != nil {
			delete(h.stopClients[id], client)
			if len(h.stopClients[id]) == 0 {
				delete(h.stopClients, id)
			}
		}
	}
}

// SubscribedStops returns every stop id at least one client watches; the
// arrivals poller polls exactly this set.
func (h *Hub) SubscribedStops() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stops := make([]string, 0, len(h.stopClients))
	for id := range h.stopClients {
		stops = append(stops, id)
	}
	return stops
}

func (h *Hub) Broadcast(updates []domain.StopArrivals) {
	if len(updates) == 0 {
		return
	}
	select {
	case h.broadcast <- updates:
	default:
		h.logger.Warn("broadcast channel full, dropping updates", "count", len(updates))
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

// ArrivalsMessage is the wire envelope for pushed updates.
type ArrivalsMessage struct {
	Type    string              `json:"type"`
	Payload domain.StopArrivals `json:"payload"`
}

func (h *Hub) fanout(updates []domain.StopArrivals) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, update := range updates {
		clients, ok := h.stopClients[update.StopID]
		if !ok {
			continue
		}

		data, err := json.Marshal(ArrivalsMessage{Type: "arrivals", Payload: update})
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
	delete(h.clients, client)

	for _, id := range client.Stops() {
		if h.stopClients[id] != nil {
			delete(h.stopClients[id], client)
			if len(h.stopClients[id]) == 0 {
				delete(h.stopClients, id)
			}
		}
	}

	close(client.Send)
	h.logger.Debug("client removed", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
	h.stopClients = make(map[string]map[*Client]struct{})
}
