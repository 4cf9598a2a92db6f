package relay

import (
	"github.com/goevery/streamify/internal/presence"
	"github.com/goevery/streamify/internal/rpc"
	"go.uber.org/zap"
)

// Relay forwards content-free signals to the recipient's active connection.
// Delivery is at most once: no queueing, no retry, no acknowledgement.
type Relay struct {
	logger   *zap.Logger
	registry presence.Registry
}

func New(logger *zap.Logger, registry presence.Registry) *Relay {
	return &Relay{
		logger,
		registry,
	}
}

// Wake tells recipientId to re-check its unread conversations.
func (r *Relay) Wake(recipientId string) bool {
	return r.signal(recipientId, rpc.MethodWake)
}

// FriendRequest tells recipientId to re-check its pending friend requests.
func (r *Relay) FriendRequest(recipientId string) bool {
	return r.signal(recipientId, rpc.MethodFriendRequest)
}

func (r *Relay) signal(recipientId string, method string) bool {
	connection, ok := r.registry.Lookup(recipientId)
	if !ok {
		r.logger.Debug("recipient not connected, dropping signal",
			zap.String("recipientId", recipientId),
			zap.String("method", method))

		return false
	}

	notification, err := rpc.NewNotification(method, nil)
	if err != nil {
		r.logger.Error("failed to build notification", zap.Error(err))

		return false
	}

	if !connection.Enqueue(notification) {
		r.logger.Warn("connection send queue unavailable, dropping signal",
			zap.String("recipientId", recipientId),
			zap.String("connectionId", connection.Id),
			zap.String("method", method))

		return false
	}

	return true
}
