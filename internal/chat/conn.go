package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is one attached realtime client. Frames are queued on a bounded
// buffer drained by the transport's write loop.
type Conn struct {
	ID     string
	UserID int64 // 0 for anonymous connections

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConn(userID int64, buffer int) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
	}
}

// Frames is the outbound queue. It is closed when the connection detaches.
func (c *Conn) Frames() <-chan []byte {
	return c.send
}

// enqueue never blocks; it reports false when the frame was dropped.
func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
