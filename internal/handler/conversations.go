package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/ierr"
)

type UnreadConversationsHandlerInterface interface {
	Handle(ctx context.Context) ([]chatprovider.Conversation, error)
}

type UnreadConversationsHandler struct {
	provider chatprovider.Provider
	pageSize int
}

func NewUnreadConversationsHandler(provider chatprovider.Provider) *UnreadConversationsHandler {
	return &UnreadConversationsHandler{
		provider: provider,
		pageSize: chatprovider.DefaultUnreadPageSize,
	}
}

func (h *UnreadConversationsHandler) Handle(ctx context.Context) ([]chatprovider.Conversation, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}

	conversations, err := h.provider.QueryConversations(ctx,
		chatprovider.ConversationFilter{
			Member:                 authentication.Subject,
			UnreadCountGreaterThan: 0,
		},
		chatprovider.SortLastMessageDesc,
		h.pageSize,
	)
	if err != nil {
		return nil, ierr.From(err)
	}

	if conversations == nil {
		conversations = []chatprovider.Conversation{}
	}

	return conversations, nil
}

type OpenConversationRequest struct {
	PeerId string `json:"peerId"`
}

type OpenConversationHandlerInterface interface {
	Handle(ctx context.Context, req OpenConversationRequest) (chatprovider.Conversation, error)
}

// OpenConversationHandler opens the direct conversation with a peer and
// marks it read for the caller, the way watching a channel does.
type OpenConversationHandler struct {
	identityValidator *IdentityValidator
	provider          chatprovider.Provider
}

func NewOpenConversationHandler(
	identityValidator *IdentityValidator,
	provider chatprovider.Provider,
) *OpenConversationHandler {
	return &OpenConversationHandler{
		identityValidator,
		provider,
	}
}

func (h *OpenConversationHandler) Handle(ctx context.Context, req OpenConversationRequest) (chatprovider.Conversation, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	err = h.identityValidator.Validate(req.PeerId)
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	conversation, err := h.provider.OpenOrCreateConversation(ctx, []string{authentication.Subject, req.PeerId})
	if err != nil {
		return chatprovider.Conversation{}, ierr.From(err)
	}

	err = h.provider.MarkRead(ctx, conversation.Id, authentication.Subject)
	if err != nil {
		return chatprovider.Conversation{}, ierr.From(err)
	}

	for i := range conversation.Members {
		if conversation.Members[i].UserId == authentication.Subject {
			conversation.Members[i].UnreadCount = 0
		}
	}

	return conversation, nil
}

type SendMessageRequest struct {
	ConversationId string `json:"conversationId"`
	Text           string `json:"text"`
}

type SendMessageHandlerInterface interface {
	Handle(ctx context.Context, req SendMessageRequest) (chatprovider.Message, error)
}

type SendMessageHandler struct {
	provider chatprovider.Provider
}

func NewSendMessageHandler(provider chatprovider.Provider) *SendMessageHandler {
	return &SendMessageHandler{
		provider,
	}
}

func (h *SendMessageHandler) Handle(ctx context.Context, req SendMessageRequest) (chatprovider.Message, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return chatprovider.Message{}, err
	}

	text := sanitizeText(req.Text)
	if text == "" {
		return chatprovider.Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message text cannot be empty"))
	}

	message, err := h.provider.SendMessage(ctx, req.ConversationId, authentication.Subject, text)
	if err != nil {
		return chatprovider.Message{}, ierr.From(err)
	}

	return message, nil
}

type StartCallRequest struct {
	ConversationId string `json:"conversationId"`
}

type StartCallResponse struct {
	CallUrl string               `json:"callUrl"`
	Message chatprovider.Message `json:"message"`
}

type StartCallHandlerInterface interface {
	Handle(ctx context.Context, req StartCallRequest) (StartCallResponse, error)
}

// StartCallHandler posts a joinable video call link into the conversation.
// Call signaling itself happens elsewhere.
type StartCallHandler struct {
	provider chatprovider.Provider
	baseURL  string
}

func NewStartCallHandler(provider chatprovider.Provider, baseURL string) *StartCallHandler {
	return &StartCallHandler{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func CallURL(baseURL string, conversationId string) string {
	return strings.TrimRight(baseURL, "/") + "/call/" + conversationId
}

func (h *StartCallHandler) Handle(ctx context.Context, req StartCallRequest) (StartCallResponse, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return StartCallResponse{}, err
	}

	if req.ConversationId == "" {
		return StartCallResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("conversation id is required"))
	}

	callUrl := CallURL(h.baseURL, req.ConversationId)

	message, err := h.provider.SendMessage(ctx,
		req.ConversationId,
		authentication.Subject,
		"I've started a video call. Join me here: "+callUrl,
	)
	if err != nil {
		return StartCallResponse{}, ierr.From(err)
	}

	return StartCallResponse{
		CallUrl: callUrl,
		Message: message,
	}, nil
}
