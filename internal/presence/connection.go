package presence

import (
	"context"
	"sync"

	"github.com/goevery/streamify/internal/rpc"
)

// Connection is the server side of one live websocket. Outbound frames are
// queued on a bounded buffer drained by the connection's writer.
type Connection struct {
	Id     string
	UserId string

	mu     sync.Mutex
	closed bool
	send   chan rpc.Request
}

func NewConnection(id string, userId string, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	return &Connection{
		Id:     id,
		UserId: userId,
		send:   make(chan rpc.Request, bufferSize),
	}
}

// Enqueue never blocks. It reports false when the queue is full or the
// connection is already closed.
func (c *Connection) Enqueue(request rpc.Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- request:
		return true
	default:
		return false
	}
}

func (c *Connection) Outbound() <-chan rpc.Request {
	return c.send
}

func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
