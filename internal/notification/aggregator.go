// Package notification keeps one client session's view of pending friend
// requests and unread conversations, and derives the badge count from it.
package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/friendship"
	"github.com/goevery/streamify/internal/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultWakeDelay = 500 * time.Millisecond

// Backend is the session's view of the collaborators, usually the HTTP API.
type Backend interface {
	FriendRequests(ctx context.Context) (friendship.Requests, error)
	UnreadConversations(ctx context.Context) ([]chatprovider.Conversation, error)
	Friends(ctx context.Context) ([]string, error)
	AcceptFriendRequest(ctx context.Context, requestId string) (friendship.Request, error)
	OpenConversation(ctx context.Context, peerId string) (chatprovider.Conversation, error)
}

// EventSource delivers server events by method name. Subscribe returns the
// function that releases the subscription.
type EventSource interface {
	Subscribe(method string, handler func()) func()
}

type Config struct {
	// WakeDelay is how long a wake waits before refetching unread
	// conversations, giving the chat provider time to index the message.
	WakeDelay time.Duration

	// WakeRetries re-schedules the refetch when the unread set came back
	// unchanged. Zero disables it.
	WakeRetries int
}

type Snapshot struct {
	IncomingRequests    []friendship.Request
	AcceptedRequests    []friendship.Request
	UnreadConversations []chatprovider.Conversation
	Friends             []string
}

func (s Snapshot) NotificationCount() int {
	return len(s.IncomingRequests) + len(s.UnreadConversations)
}

type Aggregator struct {
	logger  *zap.Logger
	backend Backend
	config  Config
	cache   *QueryCache

	mu             sync.Mutex
	state          Snapshot
	closed         bool
	wakeTimer      *time.Timer
	unsubscribes   []func()
	subscribers    map[int]func(Snapshot)
	nextSubscriber int

	publishMu sync.Mutex
}

func NewAggregator(logger *zap.Logger, backend Backend, config Config) *Aggregator {
	if config.WakeDelay <= 0 {
		config.WakeDelay = DefaultWakeDelay
	}

	a := &Aggregator{
		logger:      logger,
		backend:     backend,
		config:      config,
		cache:       NewQueryCache(),
		subscribers: make(map[int]func(Snapshot)),
	}

	a.cache.OnInvalidate(KeyFriendRequests, func(ctx context.Context) error {
		_, err := a.FetchFriendRequests(ctx)
		return err
	})
	a.cache.OnInvalidate(KeyUnreadConversations, func(ctx context.Context) error {
		_, err := a.FetchUnreadConversations(ctx)
		return err
	})
	a.cache.OnInvalidate(KeyFriends, func(ctx context.Context) error {
		_, err := a.FetchFriends(ctx)
		return err
	})

	return a
}

// Attach subscribes to the server events that drive refetches. The
// subscriptions are released by Close.
func (a *Aggregator) Attach(source EventSource) {
	unsubscribeWake := source.Subscribe(rpc.MethodWake, a.OnWake)
	unsubscribeFriendRequest := source.Subscribe(rpc.MethodFriendRequest, a.OnFriendRequest)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.unsubscribes = append(a.unsubscribes, unsubscribeWake, unsubscribeFriendRequest)

	if a.closed {
		a.releaseLocked()
	}
}

func (a *Aggregator) FetchFriendRequests(ctx context.Context) (friendship.Requests, error) {
	requests, generation, err := Query(ctx, a.cache, KeyFriendRequests, a.backend.FriendRequests)
	if err != nil {
		return friendship.Requests{}, err
	}

	err = a.update(KeyFriendRequests, generation, func(state *Snapshot) {
		state.IncomingRequests = requests.Incoming
		state.AcceptedRequests = requests.Accepted
	})

	return requests, err
}

func (a *Aggregator) FetchUnreadConversations(ctx context.Context) ([]chatprovider.Conversation, error) {
	conversations, generation, err := Query(ctx, a.cache, KeyUnreadConversations, a.backend.UnreadConversations)
	if err != nil {
		return nil, err
	}

	err = a.update(KeyUnreadConversations, generation, func(state *Snapshot) {
		state.UnreadConversations = conversations
	})

	return conversations, err
}

func (a *Aggregator) FetchFriends(ctx context.Context) ([]string, error) {
	friends, generation, err := Query(ctx, a.cache, KeyFriends, a.backend.Friends)
	if err != nil {
		return nil, err
	}

	err = a.update(KeyFriends, generation, func(state *Snapshot) {
		state.Friends = friends
	})

	return friends, err
}

// Refresh fetches every collection concurrently.
func (a *Aggregator) Refresh(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := a.FetchFriendRequests(gCtx)
		return err
	})
	g.Go(func() error {
		_, err := a.FetchUnreadConversations(gCtx)
		return err
	})
	g.Go(func() error {
		_, err := a.FetchFriends(gCtx)
		return err
	})

	return g.Wait()
}

// OnWake schedules a refetch of unread conversations after the wake delay.
// Wakes arriving while one is already scheduled are folded into it.
func (a *Aggregator) OnWake() {
	a.scheduleWakeRefetch(0)
}

func (a *Aggregator) scheduleWakeRefetch(attempt int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.wakeTimer != nil {
		return
	}

	a.wakeTimer = time.AfterFunc(a.config.WakeDelay, func() {
		a.wakeRefetch(attempt)
	})
}

func (a *Aggregator) wakeRefetch(attempt int) {
	a.mu.Lock()
	a.wakeTimer = nil
	before := a.state.UnreadConversations
	closed := a.closed
	a.mu.Unlock()

	if closed {
		return
	}

	err := a.cache.Invalidate(a.cache.ctx, KeyUnreadConversations)
	if err != nil {
		a.logger.Debug("wake refetch failed", zap.Error(err))
		return
	}

	if attempt >= a.config.WakeRetries {
		return
	}

	a.mu.Lock()
	after := a.state.UnreadConversations
	a.mu.Unlock()

	if sameUnread(before, after) {
		a.scheduleWakeRefetch(attempt + 1)
	}
}

// OnFriendRequest refetches friend requests right away.
func (a *Aggregator) OnFriendRequest() {
	go func() {
		err := a.cache.Invalidate(a.cache.ctx, KeyFriendRequests)
		if err != nil {
			a.logger.Debug("friend request refetch failed", zap.Error(err))
		}
	}()
}

// AcceptFriendRequest accepts through the backend, then refreshes the
// friend requests and friends collections.
func (a *Aggregator) AcceptFriendRequest(ctx context.Context, requestId string) (friendship.Request, error) {
	request, err := a.backend.AcceptFriendRequest(ctx, requestId)
	if err != nil {
		return friendship.Request{}, err
	}

	a.invalidate(ctx, KeyFriendRequests, KeyFriends)

	return request, nil
}

// OpenConversation opens the conversation with peerId, which marks it read,
// and refetches unread conversations without waiting for a wake.
func (a *Aggregator) OpenConversation(ctx context.Context, peerId string) (chatprovider.Conversation, error) {
	conversation, err := a.backend.OpenConversation(ctx, peerId)
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	a.invalidate(ctx, KeyUnreadConversations)

	return conversation, nil
}

func (a *Aggregator) invalidate(ctx context.Context, keys ...QueryKey) {
	var g errgroup.Group

	for _, key := range keys {
		g.Go(func() error {
			return a.cache.Invalidate(ctx, key)
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Warn("failed to refetch after invalidation", zap.Error(err))
	}
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

func (a *Aggregator) NotificationCount() int {
	return a.Snapshot().NotificationCount()
}

// Subscribe registers fn to receive a snapshot after every state change. fn
// runs synchronously and must not call back into mutating methods.
func (a *Aggregator) Subscribe(fn func(Snapshot)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSubscriber
	a.nextSubscriber++
	a.subscribers[id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		delete(a.subscribers, id)
	}
}

// Close releases the event subscriptions, stops any scheduled refetch and
// cancels in-flight queries. Late results are dropped.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	a.closed = true
	a.cache.Close()

	if a.wakeTimer != nil {
		a.wakeTimer.Stop()
		a.wakeTimer = nil
	}

	a.releaseLocked()
	clear(a.subscribers)
}

func (a *Aggregator) releaseLocked() {
	for _, unsubscribe := range a.unsubscribes {
		unsubscribe()
	}

	a.unsubscribes = nil
}

// update applies a fetch result unless the key was invalidated after the
// fetch started. A newer refetch owns the collection then.
func (a *Aggregator) update(key QueryKey, generation uint64, mutate func(state *Snapshot)) error {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}

	if !a.cache.Current(key, generation) {
		a.mu.Unlock()
		a.logger.Debug("dropping stale query result", zap.String("key", string(key)))
		return nil
	}

	mutate(&a.state)
	snapshot := a.state

	subscribers := make([]func(Snapshot), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subscribers = append(subscribers, fn)
	}
	a.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}

	return nil
}

func sameUnread(a []chatprovider.Conversation, b []chatprovider.Conversation) bool {
	return slices.EqualFunc(a, b, func(x chatprovider.Conversation, y chatprovider.Conversation) bool {
		return x.Id == y.Id && slices.Equal(x.Members, y.Members)
	})
}
