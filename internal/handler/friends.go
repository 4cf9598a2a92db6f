package handler

import (
	"context"

	"github.com/goevery/streamify/internal/friendship"
	"github.com/goevery/streamify/internal/ierr"
)

type FriendRequestsHandlerInterface interface {
	Handle(ctx context.Context) (friendship.Requests, error)
}

type FriendRequestsHandler struct {
	store friendship.Store
}

func NewFriendRequestsHandler(store friendship.Store) *FriendRequestsHandler {
	return &FriendRequestsHandler{
		store,
	}
}

func (h *FriendRequestsHandler) Handle(ctx context.Context) (friendship.Requests, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return friendship.Requests{}, err
	}

	requests, err := h.store.ListForUser(ctx, authentication.Subject)
	if err != nil {
		return friendship.Requests{}, ierr.From(err)
	}

	return requests, nil
}

type SendFriendRequestRequest struct {
	RecipientId string `json:"recipientId"`
}

type SendFriendRequestHandlerInterface interface {
	Handle(ctx context.Context, req SendFriendRequestRequest) (friendship.Request, error)
}

type FriendRequestNotifier interface {
	FriendRequest(recipientId string) bool
}

type SendFriendRequestHandler struct {
	identityValidator *IdentityValidator
	store             friendship.Store
	notifier          FriendRequestNotifier
}

func NewSendFriendRequestHandler(
	identityValidator *IdentityValidator,
	store friendship.Store,
	notifier FriendRequestNotifier,
) *SendFriendRequestHandler {
	return &SendFriendRequestHandler{
		identityValidator,
		store,
		notifier,
	}
}

func (h *SendFriendRequestHandler) Handle(ctx context.Context, req SendFriendRequestRequest) (friendship.Request, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return friendship.Request{}, err
	}

	err = h.identityValidator.Validate(req.RecipientId)
	if err != nil {
		return friendship.Request{}, err
	}

	request, err := h.store.Create(ctx, authentication.Subject, req.RecipientId)
	if err != nil {
		return friendship.Request{}, ierr.From(err)
	}

	h.notifier.FriendRequest(req.RecipientId)

	return request, nil
}

type AcceptFriendRequestRequest struct {
	RequestId string `json:"requestId"`
}

type AcceptFriendRequestHandlerInterface interface {
	Handle(ctx context.Context, req AcceptFriendRequestRequest) (friendship.Request, error)
}

type AcceptFriendRequestHandler struct {
	store friendship.Store
}

func NewAcceptFriendRequestHandler(store friendship.Store) *AcceptFriendRequestHandler {
	return &AcceptFriendRequestHandler{
		store,
	}
}

func (h *AcceptFriendRequestHandler) Handle(ctx context.Context, req AcceptFriendRequestRequest) (friendship.Request, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return friendship.Request{}, err
	}

	request, err := h.store.Accept(ctx, req.RequestId, authentication.Subject)
	if err != nil {
		return friendship.Request{}, ierr.From(err)
	}

	return request, nil
}

type FriendsResponse struct {
	Friends []string `json:"friends"`
}

type FriendsHandlerInterface interface {
	Handle(ctx context.Context) (FriendsResponse, error)
}

type FriendsHandler struct {
	store friendship.Store
}

func NewFriendsHandler(store friendship.Store) *FriendsHandler {
	return &FriendsHandler{
		store,
	}
}

func (h *FriendsHandler) Handle(ctx context.Context) (FriendsResponse, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return FriendsResponse{}, err
	}

	friends, err := h.store.Friends(ctx, authentication.Subject)
	if err != nil {
		return FriendsResponse{}, ierr.From(err)
	}

	return FriendsResponse{Friends: friends}, nil
}
