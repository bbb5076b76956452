package websockets

import (
	"entryready/internal/events"
	"entryready/internal/logger"
	"sync"

	"github.com/gofiber/websocket/v2"
)

const sendBuffer = 32

type client struct {
	userID string
	send   chan events.Event
}

// Manager streams entry events to each traveler's open websocket
// connections. Slow connections drop events rather than block publishers.
type Manager struct {
	mu          sync.RWMutex
	clients     map[*client]struct{}
	unsubscribe func()
	log         logger.Logger
}

func New(eventBus *events.EventBus) *Manager {
	m := &Manager{
		clients: make(map[*client]struct{}),
		log:     logger.New("WebsocketManager"),
	}
	m.unsubscribe = eventBus.Subscribe(events.ChannelEntries, m.broadcast)
	return m
}

func (m *Manager) register(userID string) *client {
	c := &client{userID: userID, send: make(chan events.Event, sendBuffer)}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	m.log.Function("register").Debug("Websocket client connected", "userID", userID)
	return c
}

func (m *Manager) unregister(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
}

func (m *Manager) broadcast(event events.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for c := range m.clients {
		if c.userID != event.UserID {
			continue
		}
		select {
		case c.send <- event:
		default:
			m.log.Function("broadcast").Warn("Dropped event for slow websocket client",
				"userID", c.userID, "type", event.Type)
		}
	}
}

func (m *Manager) HandleWebSocket(conn *websocket.Conn) {
	log := m.log.Function("HandleWebSocket")

	userID, _ := conn.Locals("userID").(string)
	c := m.register(userID)
	defer m.unregister(c)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Debug("Websocket write failed", "userID", userID, "error", err)
				return
			}
		}
	}
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) Close() {
	m.unsubscribe()

	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients {
		close(c.send)
	}
	m.clients = make(map[*client]struct{})
}
