package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/presence"
	"github.com/goevery/streamify/internal/relay"
	"github.com/goevery/streamify/internal/rpc"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type websocketFixture struct {
	registry *presence.InMemoryRegistry
	server   *WebSocketServer
	url      url.URL
}

func newWebsocketFixture(t *testing.T) *websocketFixture {
	logger, _ := zap.NewDevelopment()
	registry := presence.NewInMemoryRegistry(logger)
	relayer := relay.New(logger, registry)

	router := NewRouter(logger,
		handler.NewHeartbeatHandler(),
		handler.NewNotifyRecipientHandler(relayer),
	)
	wsServer := NewWebSocketServer(logger, &websocket.Upgrader{}, registry, router, 8)

	mainRouter := mux.NewRouter()
	wsServer.Register(mainRouter)

	server := httptest.NewServer(mainRouter)
	t.Cleanup(func() {
		wsServer.Close()
		registry.Close()
		server.Close()
	})

	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"
	u.Path = "/websocket"

	return &websocketFixture{
		registry: registry,
		server:   wsServer,
		url:      *u,
	}
}

func (f *websocketFixture) dial(t *testing.T, userId string) *websocket.Conn {
	u := f.url
	if userId != "" {
		u.RawQuery = url.Values{"userId": {userId}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func (f *websocketFixture) waitRegistered(t *testing.T, userId string, conn *websocket.Conn) {
	assert.Eventually(t, func() bool {
		_, ok := f.registry.Lookup(userId)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) rpc.Frame {
	var frame rpc.Frame

	conn.SetReadDeadline(time.Now().Add(time.Second))
	err := conn.ReadJSON(&frame)
	require.NoError(t, err)

	return frame
}

func TestWebSocketServer(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		f := newWebsocketFixture(t)
		conn := f.dial(t, "a1")

		err := conn.WriteJSON(json.RawMessage(`{"id":"1","method":"heartbeat"}`))
		require.NoError(t, err)

		frame := readFrame(t, conn)
		assert.False(t, frame.IsRequest())
		assert.Equal(t, "1", frame.RequestId)
		require.NotNil(t, frame.Result)

		var heartbeat handler.HeartbeatResponse
		require.NoError(t, json.Unmarshal(*frame.Result, &heartbeat))
		assert.False(t, heartbeat.Timestamp.IsZero())
	})

	t.Run("notify recipient forwards a wake", func(t *testing.T) {
		f := newWebsocketFixture(t)
		sender := f.dial(t, "a1")
		recipient := f.dial(t, "b1")
		f.waitRegistered(t, "b1", recipient)

		err := sender.WriteJSON(json.RawMessage(`{"id":"7","method":"notify-recipient","params":{"recipientId":"b1"}}`))
		require.NoError(t, err)

		wake := readFrame(t, recipient)
		assert.True(t, wake.IsRequest())
		assert.Equal(t, rpc.MethodWake, wake.Method)
		assert.Empty(t, wake.Id)
		require.NotNil(t, wake.Params)
		assert.JSONEq(t, `{}`, string(*wake.Params))

		reply := readFrame(t, sender)
		assert.Equal(t, "7", reply.RequestId)
		assert.Nil(t, reply.Error)
		assert.JSONEq(t, `{"delivered":true}`, string(*reply.Result))
	})

	t.Run("notify to an absent recipient is not an error", func(t *testing.T) {
		f := newWebsocketFixture(t)
		sender := f.dial(t, "a1")

		err := sender.WriteJSON(json.RawMessage(`{"id":"1","method":"notify-recipient","params":{"recipientId":"nobody"}}`))
		require.NoError(t, err)

		reply := readFrame(t, sender)
		assert.Nil(t, reply.Error)
		assert.JSONEq(t, `{"delivered":false}`, string(*reply.Result))
	})

	t.Run("notification without id gets no reply", func(t *testing.T) {
		f := newWebsocketFixture(t)
		sender := f.dial(t, "a1")

		err := sender.WriteJSON(json.RawMessage(`{"method":"notify-recipient","params":{"recipientId":"nobody"}}`))
		require.NoError(t, err)
		err = sender.WriteJSON(json.RawMessage(`{"id":"2","method":"heartbeat"}`))
		require.NoError(t, err)

		reply := readFrame(t, sender)
		assert.Equal(t, "2", reply.RequestId)
	})

	t.Run("last connect wins", func(t *testing.T) {
		f := newWebsocketFixture(t)
		sender := f.dial(t, "a1")
		first := f.dial(t, "b1")
		f.waitRegistered(t, "b1", first)

		firstConnection, _ := f.registry.Lookup("b1")

		second := f.dial(t, "b1")
		assert.Eventually(t, func() bool {
			connection, ok := f.registry.Lookup("b1")
			return ok && connection.Id != firstConnection.Id
		}, time.Second, 5*time.Millisecond)

		err := sender.WriteJSON(json.RawMessage(`{"method":"notify-recipient","params":{"recipientId":"b1"}}`))
		require.NoError(t, err)

		wake := readFrame(t, second)
		assert.Equal(t, rpc.MethodWake, wake.Method)

		first.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var frame rpc.Frame
		assert.Error(t, first.ReadJSON(&frame))
	})

	t.Run("stale disconnect keeps the newer connection", func(t *testing.T) {
		f := newWebsocketFixture(t)
		first := f.dial(t, "b1")
		f.waitRegistered(t, "b1", first)
		firstConnection, _ := f.registry.Lookup("b1")

		second := f.dial(t, "b1")
		assert.Eventually(t, func() bool {
			connection, _ := f.registry.Lookup("b1")
			return connection.Id != firstConnection.Id
		}, time.Second, 5*time.Millisecond)
		secondConnection, _ := f.registry.Lookup("b1")

		first.Close()

		assert.Eventually(t, firstConnection.IsClosed, time.Second, 5*time.Millisecond)

		connection, ok := f.registry.Lookup("b1")
		require.True(t, ok)
		assert.Equal(t, secondConnection.Id, connection.Id)
		assert.NotNil(t, second)
	})

	t.Run("disconnect removes the entry", func(t *testing.T) {
		f := newWebsocketFixture(t)
		conn := f.dial(t, "c1")
		f.waitRegistered(t, "c1", conn)

		conn.Close()

		assert.Eventually(t, func() bool {
			_, ok := f.registry.Lookup("c1")
			return !ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("placeholder identity connects but is not registered", func(t *testing.T) {
		f := newWebsocketFixture(t)
		conn := f.dial(t, "undefined")

		err := conn.WriteJSON(json.RawMessage(`{"id":"1","method":"heartbeat"}`))
		require.NoError(t, err)
		readFrame(t, conn)

		assert.Equal(t, 0, f.registry.Len())
	})

	t.Run("unknown method", func(t *testing.T) {
		f := newWebsocketFixture(t)
		conn := f.dial(t, "a1")

		err := conn.WriteJSON(json.RawMessage(`{"id":"1","method":"subscribe"}`))
		require.NoError(t, err)

		reply := readFrame(t, conn)
		require.NotNil(t, reply.Error)
		assert.Equal(t, rpc.ErrorCodeMethodNotFound, reply.Error.Code)
	})

	t.Run("missing params", func(t *testing.T) {
		f := newWebsocketFixture(t)
		conn := f.dial(t, "a1")

		err := conn.WriteJSON(json.RawMessage(`{"id":"1","method":"notify-recipient"}`))
		require.NoError(t, err)

		reply := readFrame(t, conn)
		require.NotNil(t, reply.Error)
		assert.Equal(t, rpc.ErrorCodeInvalidParams, reply.Error.Code)
	})

	t.Run("invalid message closes the connection", func(t *testing.T) {
		f := newWebsocketFixture(t)
		conn := f.dial(t, "a1")

		err := conn.WriteMessage(websocket.TextMessage, []byte("invalid-json"))
		require.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
	})
}

func expectGoingAway(t *testing.T, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(time.Second))

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			return
		}
	}
}

func TestWebSocketServer_Close(t *testing.T) {
	f := newWebsocketFixture(t)

	placeholder := f.dial(t, "undefined")
	replaced := f.dial(t, "b1")
	f.waitRegistered(t, "b1", replaced)
	replacedConnection, _ := f.registry.Lookup("b1")

	current := f.dial(t, "b1")
	assert.Eventually(t, func() bool {
		connection, _ := f.registry.Lookup("b1")
		return connection.Id != replacedConnection.Id
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return f.server.liveConnections() == 3 }, time.Second, 5*time.Millisecond)

	f.server.Close()

	expectGoingAway(t, placeholder)
	expectGoingAway(t, replaced)
	expectGoingAway(t, current)

	assert.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second, 5*time.Millisecond)

	late := f.dial(t, "c1")
	expectGoingAway(t, late)

	_, ok := f.registry.Lookup("c1")
	assert.False(t, ok)
}

func TestWebSocketServer_ReadLoopStopsWhenWriterExits(t *testing.T) {
	logger := zap.NewNop()
	registry := presence.NewInMemoryRegistry(logger)
	router := NewRouter(logger,
		handler.NewHeartbeatHandler(),
		handler.NewNotifyRecipientHandler(relay.New(logger, registry)),
	)
	wsServer := NewWebSocketServer(logger, &websocket.Upgrader{}, registry, router, 1)

	returned := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := wsServer.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()

		writerDone := make(chan struct{})
		close(writerDone)

		wsServer.readLoop(context.Background(), logger, wsConn, make(chan rpc.Response), writerDone)
		close(returned)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.WriteJSON(json.RawMessage(`{"id":"1","method":"heartbeat"}`))
	require.NoError(t, err)

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("read loop kept waiting for a writer that already exited")
	}
}
