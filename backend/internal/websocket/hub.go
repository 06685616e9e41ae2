package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/user/papertrade/backend/internal/ticker"
)

// Client represents a single WebSocket client connection.
type Client struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte // Buffered channel for outbound messages
}

// NewClient wraps a connection with a buffered send queue.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{ID: uuid.New(), Conn: conn, Send: make(chan []byte, 256)}
}

// Hub manages WebSocket clients and broadcasts price updates to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *logrus.Entry
}

// NewHub creates and initializes a new Hub.
func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run starts the Hub's event loop, forwarding updates until ctx is done.
func (h *Hub) Run(ctx context.Context, updates <-chan ticker.PriceUpdate) {
	h.log.Info("Starting WebSocket hub")
	defer close(h.done)
	go h.listen(ctx, updates)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.WithField("client", client.ID).Debug("Client registered")

		case client := <-h.Unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Client's send buffer is full, drop it
					h.log.WithField("client", client.ID).Warn("Client send buffer full, closing connection")
					delete(h.clients, client)
					close(client.Send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Join registers a client. It returns false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters a client. It is a no-op once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.log.WithField("client", client.ID).Debug("Client unregistered")
	}
}

// listen marshals feed updates onto the broadcast channel.
func (h *Hub) listen(ctx context.Context, updates <-chan ticker.PriceUpdate) {
	for {
		var update ticker.PriceUpdate
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			update = u
		}

		msg, err := json.Marshal(update)
		if err != nil {
			h.log.Errorf("Error marshalling price update: %v", err)
			continue
		}
		select {
		case h.broadcast <- msg:
		case <-ctx.Done():
			return
		}
	}
}
