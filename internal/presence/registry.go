package presence

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry maps a user identity to its single active connection.
type Registry interface {
	// Register binds userId to connection, replacing any previous binding.
	// Missing or placeholder identities are ignored and false is returned.
	Register(userId string, connection *Connection) bool

	// Lookup returns the connection currently bound to userId.
	Lookup(userId string) (*Connection, bool)

	// Unregister removes the binding that holds connectionId, if any.
	Unregister(connectionId string)
}

var placeholderIdentities = []string{"undefined", "null"}

// IsValidIdentity reports whether userId may own a registry entry.
func IsValidIdentity(userId string) bool {
	trimmed := strings.TrimSpace(userId)
	if trimmed == "" {
		return false
	}

	for _, placeholder := range placeholderIdentities {
		if trimmed == placeholder {
			return false
		}
	}

	return true
}

type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections map[string]*Connection
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

func (r *InMemoryRegistry) Register(userId string, connection *Connection) bool {
	if !IsValidIdentity(userId) || connection == nil {
		r.logger.Debug("ignoring connection without identity",
			zap.String("userId", userId))

		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.connections[userId]; ok && previous.Id != connection.Id {
		r.logger.Debug("replacing connection for user",
			zap.String("userId", userId),
			zap.String("previousConnectionId", previous.Id),
			zap.String("connectionId", connection.Id))
	}

	r.connections[userId] = connection

	return true
}

func (r *InMemoryRegistry) Lookup(userId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connection, ok := r.connections[userId]

	return connection, ok
}

func (r *InMemoryRegistry) Unregister(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userId, connection := range r.connections {
		if connection.Id == connectionId {
			delete(r.connections, userId)

			return
		}
	}
}

func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

// Close drops every binding and closes the outbound queues of the
// connections that were still registered.
func (r *InMemoryRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userId, connection := range r.connections {
		connection.Close()
		delete(r.connections, userId)
	}
}
