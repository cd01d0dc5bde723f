package events

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Broadcaster forwards events to connected WebSocket clients. It is a Sink,
// so wiring it into a Bus streams the full agent lifecycle to observers.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	logger  zerolog.Logger
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewBroadcaster creates a broadcaster with no connected clients.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*wsClient),
		logger:  logger.With().Str("component", "event_broadcaster").Logger(),
	}
}

// Add registers a client connection under the given id, replacing any
// previous connection with the same id.
func (b *Broadcaster) Add(id string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[id] = &wsClient{id: id, conn: conn}
}

// Remove drops a client. The connection itself is not closed; the caller
// owns its lifecycle.
func (b *Broadcaster) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}

// Count returns the number of connected clients.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Emit implements Sink. Write failures are logged per client and the
// failing client is dropped from the registry.
func (b *Broadcaster) Emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("event", event.Name).
			Msg("Failed to marshal event")
		return
	}

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(data); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.id).
				Str("event", event.Name).
				Msg("Failed to broadcast to client")
			b.Remove(client.id)
		}
	}
}
