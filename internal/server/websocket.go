package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goevery/streamify/internal/presence"
	"github.com/goevery/streamify/internal/rpc"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type WebSocketServer struct {
	logger         *zap.Logger
	upgrader       *websocket.Upgrader
	registry       presence.Registry
	router         *Router
	sendBufferSize int

	mu          sync.Mutex
	closed      bool
	connections map[string]*presence.Connection
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry presence.Registry,
	router *Router,
	sendBufferSize int,
) *WebSocketServer {
	return &WebSocketServer{
		logger:         logger,
		upgrader:       upgrader,
		registry:       registry,
		router:         router,
		sendBufferSize: sendBufferSize,
		connections:    make(map[string]*presence.Connection),
	}
}

// Close closes the outbound queue of every live connection, registered or
// not, so each writer sends a going-away frame and the socket shuts down.
// Connections arriving afterwards are refused.
func (s *WebSocketServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	for id, connection := range s.connections {
		connection.Close()
		delete(s.connections, id)
	}
}

func (s *WebSocketServer) track(connection *presence.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.connections[connection.Id] = connection

	return true
}

func (s *WebSocketServer) untrack(connectionId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, connectionId)
}

func (s *WebSocketServer) liveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.connections)
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.serve).Methods(http.MethodGet)
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer wsConn.Close()

	connectionId, err := gonanoid.New()
	if err != nil {
		s.logger.Error("failed to generate connection id", zap.Error(err))
		return
	}

	userId := r.URL.Query().Get("userId")
	connection := presence.NewConnection(connectionId, userId, s.sendBufferSize)

	if !s.track(connection) {
		wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeWait))
		return
	}

	logger := s.logger.With(
		zap.String("connectionId", connectionId),
		zap.String("userId", userId),
		zap.String("remoteAddr", r.RemoteAddr))

	registered := s.registry.Register(userId, connection)

	logger.Info("websocket connection established", zap.Bool("registered", registered))

	defer func() {
		s.registry.Unregister(connectionId)
		s.untrack(connectionId)
		connection.Close()

		logger.Info("websocket connection closed")
	}()

	replies := make(chan rpc.Response, s.sendBufferSize)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		s.writeLoop(logger, wsConn, connection, replies, done)
	}()

	ctx := presence.WithConnection(r.Context(), connection)

	s.readLoop(ctx, logger, wsConn, replies, writerDone)
	close(done)
}

func (s *WebSocketServer) readLoop(
	ctx context.Context,
	logger *zap.Logger,
	wsConn *websocket.Conn,
	replies chan<- rpc.Response,
	writerDone <-chan struct{},
) {
	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var request rpc.Request

		err := wsConn.ReadJSON(&request)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", zap.Error(err))
			}

			return
		}

		var response *rpc.Response
		if request.Method == "" {
			if !request.ReplyExpected() {
				continue
			}

			reply := request.ReplyWithError(
				rpc.NewError(rpc.ErrorCodeInvalidRequest, errors.New("method is required")),
			)
			response = &reply
		} else {
			response = s.router.RouteRequest(ctx, request)
		}

		if response == nil {
			continue
		}

		select {
		case replies <- *response:
		case <-writerDone:
			return
		}
	}
}

// writeLoop is the only writer of wsConn. It stops when the connection's
// outbound queue is closed, which happens on unregister or registry shutdown.
func (s *WebSocketServer) writeLoop(
	logger *zap.Logger,
	wsConn *websocket.Conn,
	connection *presence.Connection,
	replies <-chan rpc.Response,
	done <-chan struct{},
) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case request, ok := <-connection.Outbound():
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := wsConn.WriteJSON(request); err != nil {
				logger.Debug("failed to write notification", zap.Error(err))
				return
			}
		case response := <-replies:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteJSON(response); err != nil {
				logger.Debug("failed to write response", zap.Error(err))
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
