package messaging

import (
	"log/slog"
	"sync"

	"houmetna-service/internal/model"

	"github.com/google/uuid"
)

const (
	clientBufferSize    = 10
	broadcastBufferSize = 100
)

type SSEClient struct {
	UserID  uuid.UUID
	Channel chan *model.Notification
}

// SSEHub routes fresh notifications to the open event streams of their recipient.
type SSEHub struct {
	clients    map[uuid.UUID][]*SSEClient
	register   chan *SSEClient
	unregister chan *SSEClient
	broadcast  chan *model.Notification
	done       chan struct{}
	mu         sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients:    make(map[uuid.UUID][]*SSEClient),
		register:   make(chan *SSEClient),
		unregister: make(chan *SSEClient),
		broadcast:  make(chan *model.Notification, broadcastBufferSize),
		done:       make(chan struct{}),
	}
}

func (h *SSEHub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			slog.Debug("sse: client registered", "user_id", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			userClients := h.clients[client.UserID]
			for i, c := range userClients {
				if c == client {
					h.clients[client.UserID] = append(userClients[:i], userClients[i+1:]...)
					break
				}
			}
			if len(h.clients[client.UserID]) == 0 {
				delete(h.clients, client.UserID)
			}
			h.mu.Unlock()
			close(client.Channel)
			slog.Debug("sse: client unregistered", "user_id", client.UserID)

		case notification := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients[notification.UserID] {
				select {
				case client.Channel <- notification:
				default:
					// slow client, drop
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *SSEHub) Stop() {
	close(h.done)
}

func (h *SSEHub) RegisterClient(userID uuid.UUID) *SSEClient {
	client := &SSEClient{
		UserID:  userID,
		Channel: make(chan *model.Notification, clientBufferSize),
	}
	if h.stopped() {
		close(client.Channel)
		return client
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Channel)
	}
	return client
}

func (h *SSEHub) UnregisterClient(client *SSEClient) {
	if h.stopped() {
		return
	}
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// stopped reports whether Stop was called. Register and unregister return
// immediately on a stopped hub instead of waiting for Run.
func (h *SSEHub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// SendToUser queues notification for the recipient's streams. It never blocks;
// when the queue is full the live copy is dropped and the inbox still has it.
func (h *SSEHub) SendToUser(notification *model.Notification) {
	select {
	case h.broadcast <- notification:
	default:
		slog.Warn("sse: broadcast queue full, dropping", "notification_id", notification.ID)
	}
}

// ClientCount returns the number of open streams of userID.
func (h *SSEHub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
