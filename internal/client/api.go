// Package client is the session side of streamify: the HTTP API client, the
// websocket event socket and the session lifecycle that ties them to a
// notification aggregator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/friendship"
	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/ierr"
)

var ErrRequestFailed = errors.New("client: request failed")

type APIClient struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
}

func NewAPIClient(baseURL string, sessionToken string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &APIClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sessionToken: sessionToken,
		httpClient:   httpClient,
	}
}

func (c *APIClient) ChatToken(ctx context.Context) (string, error) {
	var response handler.TokenResponse
	err := c.do(ctx, http.MethodGet, "/api/chat/token", nil, &response)

	return response.Token, err
}

func (c *APIClient) UnreadConversations(ctx context.Context) ([]chatprovider.Conversation, error) {
	var conversations []chatprovider.Conversation
	err := c.do(ctx, http.MethodGet, "/api/chat/unread-conversations", nil, &conversations)

	return conversations, err
}

func (c *APIClient) OpenConversation(ctx context.Context, peerId string) (chatprovider.Conversation, error) {
	var conversation chatprovider.Conversation
	err := c.do(ctx, http.MethodPost, "/api/chat/conversations", handler.OpenConversationRequest{PeerId: peerId}, &conversation)

	return conversation, err
}

func (c *APIClient) SendMessage(ctx context.Context, conversationId string, text string) (chatprovider.Message, error) {
	var message chatprovider.Message
	err := c.do(ctx, http.MethodPost,
		"/api/chat/conversations/"+url.PathEscape(conversationId)+"/messages",
		handler.SendMessageRequest{Text: text},
		&message)

	return message, err
}

func (c *APIClient) StartCall(ctx context.Context, conversationId string) (handler.StartCallResponse, error) {
	var response handler.StartCallResponse
	err := c.do(ctx, http.MethodPost, "/api/chat/conversations/"+url.PathEscape(conversationId)+"/call", nil, &response)

	return response, err
}

func (c *APIClient) FriendRequests(ctx context.Context) (friendship.Requests, error) {
	var requests friendship.Requests
	err := c.do(ctx, http.MethodGet, "/api/friends/requests", nil, &requests)

	return requests, err
}

func (c *APIClient) SendFriendRequest(ctx context.Context, recipientId string) (friendship.Request, error) {
	var request friendship.Request
	err := c.do(ctx, http.MethodPost, "/api/friends/requests", handler.SendFriendRequestRequest{RecipientId: recipientId}, &request)

	return request, err
}

func (c *APIClient) AcceptFriendRequest(ctx context.Context, requestId string) (friendship.Request, error) {
	var request friendship.Request
	err := c.do(ctx, http.MethodPut, "/api/friends/requests/"+url.PathEscape(requestId)+"/accept", nil, &request)

	return request, err
}

func (c *APIClient) Friends(ctx context.Context) ([]string, error) {
	var response handler.FriendsResponse
	err := c.do(ctx, http.MethodGet, "/api/friends", nil, &response)

	return response.Friends, err
}

func (c *APIClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr ierr.Error
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, resp.Status)
		}

		return fmt.Errorf("%w: %w", ErrRequestFailed, apiErr)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
