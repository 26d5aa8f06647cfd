package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"blogview/logx"
)

const (
	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 16
)

// WSClient is one registered socket. Its messages go through a bounded queue
// drained by Serve, so a tab that stops reading never holds up a dispatch.
type WSClient struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// Enqueue queues message without blocking. A full queue means the reader
// stalled; the client is closed and false returned.
func (c *WSClient) Enqueue(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		logx.Warnf("session %s: websocket send queue full, closing", c.sessionID)
		c.Close()
		return false
	}
}

// Close stops Serve and closes the socket. Safe to call more than once.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the client is closed.
func (c *WSClient) Done() <-chan struct{} { return c.done }

// Serve writes queued messages until the client is closed or a write fails.
// It is the only writer of the socket.
func (c *WSClient) Serve() {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logx.Debugf("session %s: websocket write: %v", c.sessionID, err)
				return
			}
		}
	}
}

// WSConnManager tracks websocket clients per view session.
type WSConnManager struct {
	mu       sync.RWMutex
	sessions map[string][]*WSClient
}

func NewWSConnManager() *WSConnManager {
	return &WSConnManager{
		sessions: make(map[string][]*WSClient),
	}
}

// Add registers conn for sessionID. The caller runs Serve on the result and
// calls Remove when done.
func (m *WSConnManager) Add(sessionID string, conn *websocket.Conn) *WSClient {
	client := &WSClient{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], client)
	return client
}

func (m *WSConnManager) Remove(client *WSClient) {
	client.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	clients := m.sessions[client.sessionID]
	for i, c := range clients {
		if c == client {
			m.sessions[client.sessionID] = append(clients[:i:i], clients[i+1:]...)
			break
		}
	}
	if len(m.sessions[client.sessionID]) == 0 {
		delete(m.sessions, client.sessionID)
	}
}

// Send queues message for every client of sessionID and returns how many
// accepted it. Clients whose queue is full are closed and unregistered.
func (m *WSConnManager) Send(sessionID string, message []byte) int {
	m.mu.RLock()
	clients := append([]*WSClient(nil), m.sessions[sessionID]...)
	m.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.Enqueue(message) {
			sent++
		} else {
			m.Remove(c)
		}
	}
	return sent
}

func (m *WSConnManager) Count(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

var GlobalWSConnManager = NewWSConnManager()
