// internal/realtime/hub.go
package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

const sendBuffer = 64

type Client struct {
	ID     string
	UserID uuid.UUID
	Conn   *WebSocketConn
	Send   chan []byte

	rooms map[string]struct{}
}

func NewClient(userID uuid.UUID, conn *WebSocketConn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
}

func UserRoom(userID uuid.UUID) string { return "user:" + userID.String() }

func GigRoom(gigID uuid.UUID) string { return "gig:" + gigID.String() }

// Hub is the in-process registry of live connections and the rooms they listen on.
// Every client sits in its private user room; gig rooms are opt-in.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.join(client, UserRoom(client.UserID))
	log.Printf("[Hub] client registered: %s (user %s)", client.ID, client.UserID)
}

// Unregister drops the client from every room and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old, ok := h.clients[client.ID]
	if !ok {
		return
	}
	for room := range old.rooms {
		h.leave(old, room)
	}
	delete(h.clients, client.ID)
	close(old.Send)
	log.Printf("[Hub] client unregistered: %s", client.ID)
}

func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.join(client, room)
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// the private room cannot be left
	if room == UserRoom(client.UserID) {
		return
	}
	h.leave(client, room)
}

func (h *Hub) join(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	client.rooms[room] = struct{}{}
}

func (h *Hub) leave(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// Deliver implements notify.Channel for a single instance.
func (h *Hub) Deliver(_ context.Context, room string, frame []byte) error {
	h.DeliverLocal(room, frame)
	return nil
}

// DeliverLocal pushes frame to every connection in room and returns how many got it.
// A connection whose buffer is full misses the frame; the sender never blocks.
func (h *Hub) DeliverLocal(room string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.rooms[room] {
		select {
		case client.Send <- frame:
			sent++
		default:
			log.Printf("[Hub] send buffer full, dropping frame for client %s", client.ID)
		}
	}
	return sent
}

// Online reports whether the user has at least one live connection on this instance.
func (h *Hub) Online(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[UserRoom(userID)]) > 0
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
