package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans events out to the connections of a single user. It carries
// share/unshare notifications so open clients can refresh their views.
type Hub struct {
	clients    map[int64]map[*Client]bool
	mu         sync.RWMutex
	Register   chan *Client
	Unregister chan *Client
	log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true
	h.log.Debug().Int64("user_id", client.UserID).Msg("websocket client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if userClients, ok := h.clients[client.UserID]; ok {
		if _, ok := userClients[client]; ok {
			delete(userClients, client)
			close(client.send)
			if len(userClients) == 0 {
				delete(h.clients, client.UserID)
			}
			h.log.Debug().Int64("user_id", client.UserID).Msg("websocket client unregistered")
		}
	}
}

// PublishEvent delivers a payload to every open connection of the user. A
// client with a full send buffer is skipped rather than blocking the caller.
func (h *Hub) PublishEvent(userID int64, eventData []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if userClients, ok := h.clients[userID]; ok {
		for client := range userClients {
			select {
			case client.send <- eventData:
			default:
				h.log.Warn().Int64("user_id", userID).Msg("client send buffer full, dropping message")
			}
		}
	}
}
