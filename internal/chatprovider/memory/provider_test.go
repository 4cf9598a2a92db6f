package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider() *Provider {
	provider := NewProvider(chatprovider.NewTokenIssuer("chat-secret", time.Hour))

	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}

	return provider
}

func TestProvider_Unread(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider()
	require.NoError(t, provider.UpsertUser(ctx, chatprovider.User{Id: "a1", Name: "Alice"}))

	conversation, err := provider.OpenOrCreateConversation(ctx, []string{"b1", "a1"})
	require.NoError(t, err)
	assert.Equal(t, "a1-b1", conversation.Id)

	filter := chatprovider.ConversationFilter{Member: "b1"}

	unread, err := provider.QueryConversations(ctx, filter, chatprovider.SortLastMessageDesc, 30)
	require.NoError(t, err)
	assert.Empty(t, unread)

	_, err = provider.SendMessage(ctx, conversation.Id, "a1", "hola")
	require.NoError(t, err)

	unread, err = provider.QueryConversations(ctx, filter, chatprovider.SortLastMessageDesc, 30)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, 1, unread[0].UnreadCountFor("b1"))
	assert.Equal(t, 0, unread[0].UnreadCountFor("a1"))

	peer, ok := unread[0].Peer("b1")
	require.True(t, ok)
	assert.Equal(t, "Alice", peer.Name)

	require.NoError(t, provider.MarkRead(ctx, conversation.Id, "b1"))

	unread, err = provider.QueryConversations(ctx, filter, chatprovider.SortLastMessageDesc, 30)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestProvider_QueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider()

	for i := 0; i < 5; i++ {
		conversation, err := provider.OpenOrCreateConversation(ctx, []string{"me", fmt.Sprintf("peer%d", i)})
		require.NoError(t, err)
		_, err = provider.SendMessage(ctx, conversation.Id, fmt.Sprintf("peer%d", i), "hi")
		require.NoError(t, err)
	}

	unread, err := provider.QueryConversations(ctx, chatprovider.ConversationFilter{Member: "me"}, chatprovider.SortLastMessageDesc, 3)
	require.NoError(t, err)
	require.Len(t, unread, 3)
	assert.Equal(t, "me-peer4", unread[0].Id)
	assert.Equal(t, "me-peer3", unread[1].Id)
	assert.Equal(t, "me-peer2", unread[2].Id)
}

func TestProvider_Errors(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider()

	_, err := provider.OpenOrCreateConversation(ctx, []string{"a1", "a1"})
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

	_, err = provider.OpenOrCreateConversation(ctx, []string{"a-b", "c"})
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

	_, err = provider.OpenOrCreateConversation(ctx, []string{"a", "b-c"})
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

	err = provider.MarkRead(ctx, "missing", "a1")
	assert.Equal(t, ierr.ErrorCodeNotFound, ierr.CodeOf(err))

	conversation, err := provider.OpenOrCreateConversation(ctx, []string{"a1", "b1"})
	require.NoError(t, err)

	_, err = provider.SendMessage(ctx, conversation.Id, "intruder", "hi")
	assert.Equal(t, ierr.ErrorCodePermissionDenied, ierr.CodeOf(err))
}

func TestProvider_IssueAccessToken(t *testing.T) {
	issuer := chatprovider.NewTokenIssuer("chat-secret", time.Hour)
	provider := NewProvider(issuer)

	token, err := provider.IssueAccessToken("a1")
	require.NoError(t, err)

	userId, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "a1", userId)

	_, err = provider.IssueAccessToken("")
	assert.Error(t, err)
}
