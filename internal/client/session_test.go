package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goevery/streamify/internal/auth"
	"github.com/goevery/streamify/internal/chatprovider"
	chatmemory "github.com/goevery/streamify/internal/chatprovider/memory"
	friendshipmemory "github.com/goevery/streamify/internal/friendship/memory"
	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/ierr"
	"github.com/goevery/streamify/internal/notification"
	"github.com/goevery/streamify/internal/presence"
	"github.com/goevery/streamify/internal/relay"
	"github.com/goevery/streamify/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWakeDelay = 100 * time.Millisecond

type service struct {
	registry      *presence.InMemoryRegistry
	authenticator *auth.Authenticator
	apiURL        string
	socketURL     string
}

func newService(t *testing.T) *service {
	logger := zap.NewNop()

	registry := presence.NewInMemoryRegistry(logger)
	relayer := relay.New(logger, registry)
	authenticator := auth.NewAuthenticator("session-secret")
	provider := chatmemory.NewProvider(chatprovider.NewTokenIssuer("provider-secret", time.Hour))
	store := friendshipmemory.NewStore()
	identityValidator := handler.NewIdentityValidator()
	originChecker := server.NewOriginChecker(nil)

	router := server.NewRouter(logger,
		handler.NewHeartbeatHandler(),
		handler.NewNotifyRecipientHandler(relayer),
	)
	websocketServer := server.NewWebSocketServer(logger,
		&websocket.Upgrader{CheckOrigin: originChecker.Check},
		registry,
		router,
		16,
	)
	restServer := server.NewRESTServer(logger, authenticator, originChecker, server.RESTHandlers{
		Token:               handler.NewTokenHandler(t.Context(), provider, "key-1", time.Hour),
		UnreadConversations: handler.NewUnreadConversationsHandler(provider),
		OpenConversation:    handler.NewOpenConversationHandler(identityValidator, provider),
		SendMessage:         handler.NewSendMessageHandler(provider),
		StartCall:           handler.NewStartCallHandler(provider, "https://streamify.example"),
		FriendRequests:      handler.NewFriendRequestsHandler(store),
		SendFriendRequest:   handler.NewSendFriendRequestHandler(identityValidator, store, relayer),
		AcceptFriendRequest: handler.NewAcceptFriendRequestHandler(store),
		Friends:             handler.NewFriendsHandler(store),
	})

	mainRouter := mux.NewRouter()
	websocketServer.Register(mainRouter)
	restServer.Register(mainRouter)

	httpServer := httptest.NewServer(mainRouter)
	t.Cleanup(func() {
		registry.Close()
		httpServer.Close()
	})

	return &service{
		registry:      registry,
		authenticator: authenticator,
		apiURL:        httpServer.URL,
		socketURL:     "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/websocket",
	}
}

func (s *service) connect(t *testing.T, userId string) *Session {
	session := NewSession(zap.NewNop(), SessionConfig{
		APIURL:       s.apiURL,
		SocketURL:    s.socketURL,
		Notification: notification.Config{WakeDelay: testWakeDelay},
	})

	token, err := s.authenticator.IssueSessionToken(userId, "User "+userId, "", time.Hour)
	require.NoError(t, err)

	require.NoError(t, session.Connect(context.Background(), userId, token))
	t.Cleanup(session.Disconnect)

	s.waitRegistered(t, userId)

	return session
}

func (s *service) waitRegistered(t *testing.T, userId string) {
	require.Eventually(t, func() bool {
		_, ok := s.registry.Lookup(userId)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func notificationCount(session *Session) int {
	snapshot, err := session.Notifications()
	if err != nil {
		return -1
	}

	return snapshot.NotificationCount()
}

func TestSession_MessageWakesRecipient(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	alice := svc.connect(t, "a1")
	bob := svc.connect(t, "b1")
	carol := svc.connect(t, "c1")

	_, err := carol.SendFriendRequest(ctx, "b1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return notificationCount(bob) == 1 }, time.Second, 5*time.Millisecond)
	before := notificationCount(bob)

	conversation, err := alice.OpenConversation(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "a1-b1", conversation.Id)

	sentAt := time.Now()
	_, err = alice.SendMessage(ctx, conversation.Id, "b1", "hola")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return notificationCount(bob) == before+1 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(sentAt), testWakeDelay)

	snapshot, err := bob.Notifications()
	require.NoError(t, err)
	require.Len(t, snapshot.UnreadConversations, 1)
	assert.Equal(t, 1, snapshot.UnreadConversations[0].UnreadCountFor("b1"))

	_, err = bob.OpenConversation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, before, notificationCount(bob))
}

func TestSession_NotifyAfterRecipientDisconnects(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	alice := svc.connect(t, "a1")
	carol := svc.connect(t, "c1")

	conversation, err := alice.OpenConversation(ctx, "c1")
	require.NoError(t, err)

	carol.Disconnect()
	assert.Equal(t, StateDisconnected, carol.State())

	require.Eventually(t, func() bool {
		_, ok := svc.registry.Lookup("c1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, err = alice.SendMessage(ctx, conversation.Id, "c1", "are you there?")
	assert.NoError(t, err)

	_, _, _, err = alice.connected()
	require.NoError(t, err)

	_, err = alice.socket.Heartbeat(ctx)
	assert.NoError(t, err)
}

func TestSession_Lifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	session := NewSession(zap.NewNop(), SessionConfig{
		APIURL:    svc.apiURL,
		SocketURL: svc.socketURL,
	})
	assert.Equal(t, StateDisconnected, session.State())

	_, err := session.Notifications()
	assert.ErrorIs(t, err, ErrNotConnected)

	tokenA, _ := svc.authenticator.IssueSessionToken("a1", "", "", time.Hour)
	tokenB, _ := svc.authenticator.IssueSessionToken("b1", "", "", time.Hour)

	require.NoError(t, session.Connect(ctx, "a1", tokenA))
	assert.Equal(t, StateConnected, session.State())
	socket := session.socket

	require.NoError(t, session.Connect(ctx, "a1", tokenA))
	assert.Same(t, socket, session.socket)

	require.NoError(t, session.Connect(ctx, "b1", tokenB))
	assert.Equal(t, "b1", session.UserId())
	assert.NotSame(t, socket, session.socket)

	select {
	case <-socket.Done():
	case <-time.After(time.Second):
		t.Fatal("previous socket was not closed")
	}

	svc.waitRegistered(t, "b1")
	require.Eventually(t, func() bool {
		_, ok := svc.registry.Lookup("a1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	session.Disconnect()
	session.Disconnect()
	assert.Equal(t, StateDisconnected, session.State())

	_, err = session.SendMessage(ctx, "a1-b1", "a1", "hola")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSession_RequestFailure(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	alice := svc.connect(t, "a1")

	_, err := alice.SendFriendRequest(ctx, "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)

	var apiErr ierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, apiErr.Code)

	assert.Equal(t, StateConnected, alice.State())

	token, err := alice.ChatToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestSession_StartCall(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	alice := svc.connect(t, "a1")
	bob := svc.connect(t, "b1")

	conversation, err := alice.OpenConversation(ctx, "b1")
	require.NoError(t, err)

	callUrl, err := alice.StartCall(ctx, conversation.Id, "b1")
	require.NoError(t, err)
	assert.Equal(t, "https://streamify.example/call/a1-b1", callUrl)

	assert.Eventually(t, func() bool { return notificationCount(bob) == 1 }, 2*time.Second, 5*time.Millisecond)
}

// gatedTransport holds unread-conversation requests until gate is closed.
type gatedTransport struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (g *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "/unread-conversations") {
		g.once.Do(func() { close(g.entered) })
		<-g.gate
	}

	return http.DefaultTransport.RoundTrip(req)
}

func TestSession_UsableWhileInitialRefreshRuns(t *testing.T) {
	svc := newService(t)

	transport := &gatedTransport{gate: make(chan struct{}), entered: make(chan struct{})}
	session := NewSession(zap.NewNop(), SessionConfig{
		APIURL:     svc.apiURL,
		SocketURL:  svc.socketURL,
		HTTPClient: &http.Client{Transport: transport},
	})

	token, err := svc.authenticator.IssueSessionToken("a1", "", "", time.Hour)
	require.NoError(t, err)

	connected := make(chan error, 1)
	go func() {
		connected <- session.Connect(context.Background(), "a1", token)
	}()

	select {
	case <-transport.entered:
	case <-time.After(time.Second):
		t.Fatal("initial refresh did not start")
	}

	states := make(chan State, 1)
	go func() { states <- session.State() }()

	select {
	case state := <-states:
		assert.Equal(t, StateConnected, state)
	case <-time.After(time.Second):
		t.Fatal("session stayed locked during the initial refresh")
	}

	_, err = session.Notifications()
	assert.NoError(t, err)

	session.Disconnect()
	assert.Equal(t, StateDisconnected, session.State())

	close(transport.gate)
	assert.NoError(t, <-connected)
	assert.Equal(t, StateDisconnected, session.State())
}
