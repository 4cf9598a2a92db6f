package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/friendship"
	"github.com/goevery/streamify/internal/notification"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("client: session not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateTearingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTearingDown:
		return "tearing-down"
	default:
		return "unknown"
	}
}

type SessionConfig struct {
	// APIURL is the HTTP base of the service, including its base path.
	APIURL string

	// SocketURL is the websocket endpoint, for example
	// ws://localhost:8000/streamify/websocket.
	SocketURL string

	Notification notification.Config

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Session owns one user's live connection: the socket registered with the
// relay, the API client and the notification aggregator fed by both. At
// most one identity is connected at a time.
type Session struct {
	logger *zap.Logger
	config SessionConfig

	mu         sync.Mutex
	state      State
	userId     string
	api        *APIClient
	socket     *Socket
	aggregator *notification.Aggregator
}

func NewSession(logger *zap.Logger, config SessionConfig) *Session {
	return &Session{
		logger: logger,
		config: config,
	}
}

// Connect brings the session up for userId. Connecting again with the same
// identity is a no-op; a different identity tears the current one down
// first. The initial notification refresh runs without holding the session,
// so the session is usable, and can be disconnected, while it loads.
func (s *Session) Connect(ctx context.Context, userId string, sessionToken string) error {
	aggregator, err := s.connect(ctx, userId, sessionToken)
	if err != nil || aggregator == nil {
		return err
	}

	err = aggregator.Refresh(ctx)
	if err != nil && !errors.Is(err, notification.ErrClosed) {
		s.logger.Warn("initial notification refresh failed",
			zap.String("userId", userId),
			zap.Error(err))
	}

	return nil
}

// connect returns the new aggregator, or nil when userId was already
// connected.
func (s *Session) connect(ctx context.Context, userId string, sessionToken string) (*notification.Aggregator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected && s.userId == userId {
		return nil, nil
	}

	if s.state == StateConnected {
		s.disconnectLocked()
	}

	s.state = StateConnecting
	logger := s.logger.With(zap.String("userId", userId))

	api := NewAPIClient(s.config.APIURL, sessionToken, s.config.HTTPClient)

	socket, err := DialSocket(ctx, logger, s.config.Dialer, s.config.SocketURL, userId)
	if err != nil {
		s.state = StateDisconnected
		return nil, err
	}

	aggregator := notification.NewAggregator(logger, api, s.config.Notification)
	aggregator.Attach(socket)

	s.userId = userId
	s.api = api
	s.socket = socket
	s.aggregator = aggregator
	s.state = StateConnected

	logger.Debug("session connected")

	return aggregator, nil
}

// Disconnect tears the session down. It is safe to call in any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return
	}

	s.disconnectLocked()
}

func (s *Session) disconnectLocked() {
	s.state = StateTearingDown

	s.aggregator.Close()

	if err := s.socket.Close(); err != nil {
		s.logger.Debug("failed to close socket", zap.Error(err))
	}

	s.logger.Debug("session disconnected", zap.String("userId", s.userId))

	s.userId = ""
	s.api = nil
	s.socket = nil
	s.aggregator = nil
	s.state = StateDisconnected
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) UserId() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userId
}

func (s *Session) connected() (*APIClient, *Socket, *notification.Aggregator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil, nil, nil, ErrNotConnected
	}

	return s.api, s.socket, s.aggregator, nil
}

func (s *Session) Notifications() (notification.Snapshot, error) {
	_, _, aggregator, err := s.connected()
	if err != nil {
		return notification.Snapshot{}, err
	}

	return aggregator.Snapshot(), nil
}

func (s *Session) SubscribeNotifications(fn func(notification.Snapshot)) (func(), error) {
	_, _, aggregator, err := s.connected()
	if err != nil {
		return nil, err
	}

	return aggregator.Subscribe(fn), nil
}

// SendMessage posts text through the chat provider, then signals
// recipientId over the relay. The signal is best effort and never fails the
// send.
func (s *Session) SendMessage(ctx context.Context, conversationId string, recipientId string, text string) (chatprovider.Message, error) {
	api, socket, _, err := s.connected()
	if err != nil {
		return chatprovider.Message{}, err
	}

	message, err := api.SendMessage(ctx, conversationId, text)
	if err != nil {
		return chatprovider.Message{}, err
	}

	if err := socket.NotifyRecipient(recipientId); err != nil {
		s.logger.Debug("failed to notify recipient",
			zap.String("recipientId", recipientId),
			zap.Error(err))
	}

	return message, nil
}

func (s *Session) StartCall(ctx context.Context, conversationId string, recipientId string) (string, error) {
	api, socket, _, err := s.connected()
	if err != nil {
		return "", err
	}

	response, err := api.StartCall(ctx, conversationId)
	if err != nil {
		return "", err
	}

	if err := socket.NotifyRecipient(recipientId); err != nil {
		s.logger.Debug("failed to notify recipient",
			zap.String("recipientId", recipientId),
			zap.Error(err))
	}

	return response.CallUrl, nil
}

func (s *Session) OpenConversation(ctx context.Context, peerId string) (chatprovider.Conversation, error) {
	_, _, aggregator, err := s.connected()
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	return aggregator.OpenConversation(ctx, peerId)
}

func (s *Session) SendFriendRequest(ctx context.Context, recipientId string) (friendship.Request, error) {
	api, _, _, err := s.connected()
	if err != nil {
		return friendship.Request{}, err
	}

	return api.SendFriendRequest(ctx, recipientId)
}

func (s *Session) AcceptFriendRequest(ctx context.Context, requestId string) (friendship.Request, error) {
	_, _, aggregator, err := s.connected()
	if err != nil {
		return friendship.Request{}, err
	}

	return aggregator.AcceptFriendRequest(ctx, requestId)
}

func (s *Session) ChatToken(ctx context.Context) (string, error) {
	api, _, _, err := s.connected()
	if err != nil {
		return "", err
	}

	return api.ChatToken(ctx)
}
