package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/rpc"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrSocketClosed = errors.New("client: socket closed")

// Socket is one websocket to the relay. Server events are dispatched to
// subscribers by method name on the reader goroutine, in arrival order.
type Socket struct {
	logger *zap.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu            sync.Mutex
	handlers      map[string]map[int]func()
	nextHandlerId int
	pending       map[string]chan rpc.Response
	nextRequestId atomic.Uint64
	closed        bool

	done      chan struct{}
	closeOnce sync.Once
}

// DialSocket connects to socketURL, a ws:// or wss:// URL of the websocket
// endpoint, identifying as userId.
func DialSocket(
	ctx context.Context,
	logger *zap.Logger,
	dialer *websocket.Dialer,
	socketURL string,
	userId string,
) (*Socket, error) {
	u, err := url.Parse(socketURL)
	if err != nil {
		return nil, err
	}

	query := u.Query()
	query.Set("userId", userId)
	u.RawQuery = query.Encode()

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		logger:   logger.With(zap.String("userId", userId)),
		conn:     conn,
		handlers: make(map[string]map[int]func()),
		pending:  make(map[string]chan rpc.Response),
		done:     make(chan struct{}),
	}

	go s.readLoop()

	return s, nil
}

func (s *Socket) Subscribe(method string, handler func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextHandlerId
	s.nextHandlerId++

	if s.handlers[method] == nil {
		s.handlers[method] = make(map[int]func())
	}
	s.handlers[method][id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.handlers[method], id)
	}
}

// NotifyRecipient asks the relay to wake recipientId. It is fire and
// forget: the relay never reports whether the recipient was reached.
func (s *Socket) NotifyRecipient(recipientId string) error {
	notification, err := rpc.NewNotification(rpc.MethodNotifyRecipient, handler.NotifyRecipientRequest{
		RecipientId: recipientId,
	})
	if err != nil {
		return err
	}

	return s.write(notification)
}

func (s *Socket) Heartbeat(ctx context.Context) (time.Time, error) {
	var response handler.HeartbeatResponse
	err := s.Call(ctx, rpc.MethodHeartbeat, nil, &response)

	return response.Timestamp, err
}

// Call sends a request and waits for its response.
func (s *Socket) Call(ctx context.Context, method string, params any, result any) error {
	request, err := rpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	request.Id = strconv.FormatUint(s.nextRequestId.Add(1), 10)

	responses := make(chan rpc.Response, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSocketClosed
	}
	s.pending[request.Id] = responses
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, request.Id)
		s.mu.Unlock()
	}()

	if err := s.write(request); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSocketClosed
	case response := <-responses:
		if response.IsFailure() {
			return *response.Error
		}

		if result == nil || response.Result == nil {
			return nil
		}

		return json.Unmarshal(*response.Result, result)
	}
}

// Done is closed once the socket stops reading.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		err = s.conn.Close()
	})

	<-s.done

	return err
}

func (s *Socket) write(v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrSocketClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteJSON(v)
}

func (s *Socket) readLoop() {
	defer close(s.done)

	for {
		var frame rpc.Frame

		err := s.conn.ReadJSON(&frame)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.closed = true
			s.mu.Unlock()

			if !closed {
				s.logger.Debug("socket read failed", zap.Error(err))
			}

			return
		}

		if frame.IsRequest() {
			s.dispatch(frame.Method)
			continue
		}

		s.mu.Lock()
		responses, ok := s.pending[frame.RequestId]
		s.mu.Unlock()

		if ok {
			select {
			case responses <- frame.Response():
			default:
			}
		}
	}
}

func (s *Socket) dispatch(method string) {
	s.mu.Lock()
	handlers := make([]func(), 0, len(s.handlers[method]))
	for _, fn := range s.handlers[method] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	if len(handlers) == 0 {
		s.logger.Debug("no handler for server event", zap.String("method", method))
	}

	for _, fn := range handlers {
		fn()
	}
}
