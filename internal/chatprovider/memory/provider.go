package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/ierr"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type conversation struct {
	id            string
	members       []string
	unread        map[string]int
	createTime    time.Time
	lastMessageAt time.Time
	messages      []chatprovider.Message
}

// Provider keeps conversations in process memory. It backs local runs and
// tests when no database is configured.
type Provider struct {
	*chatprovider.TokenIssuer

	mu            sync.RWMutex
	users         map[string]chatprovider.User
	conversations map[string]*conversation
	now           func() time.Time
}

func NewProvider(tokenIssuer *chatprovider.TokenIssuer) *Provider {
	return &Provider{
		TokenIssuer:   tokenIssuer,
		users:         make(map[string]chatprovider.User),
		conversations: make(map[string]*conversation),
		now:           time.Now,
	}
}

func (p *Provider) UpsertUser(ctx context.Context, user chatprovider.User) error {
	if user.Id == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("user id is required"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.users[user.Id] = user

	return nil
}

func (p *Provider) QueryConversations(
	ctx context.Context,
	filter chatprovider.ConversationFilter,
	sort chatprovider.Sort,
	limit int,
) ([]chatprovider.Conversation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []chatprovider.Conversation
	for _, c := range p.conversations {
		summary := p.summaryLocked(c)
		if filter.Matches(summary) {
			result = append(result, summary)
		}
	}

	slices.SortFunc(result, func(a, b chatprovider.Conversation) int {
		if sort == chatprovider.SortCreateTimeDesc {
			return b.CreateTime.Compare(a.CreateTime)
		}

		return b.LastMessageAt.Compare(a.LastMessageAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (p *Provider) OpenOrCreateConversation(ctx context.Context, members []string) (chatprovider.Conversation, error) {
	memberIds, err := chatprovider.NormalizeMembers(members)
	if err != nil {
		return chatprovider.Conversation{}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	id := chatprovider.ConversationId(memberIds)

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conversations[id]
	if !ok {
		c = &conversation{
			id:         id,
			members:    memberIds,
			unread:     make(map[string]int),
			createTime: p.now(),
		}
		p.conversations[id] = c
	}

	return p.summaryLocked(c), nil
}

func (p *Provider) MarkRead(ctx context.Context, conversationId string, userId string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conversations[conversationId]
	if !ok {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("conversation not found"))
	}

	if !slices.Contains(c.members, userId) {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user is not a member of the conversation"))
	}

	c.unread[userId] = 0

	return nil
}

func (p *Provider) SendMessage(ctx context.Context, conversationId string, senderId string, text string) (chatprovider.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conversations[conversationId]
	if !ok {
		return chatprovider.Message{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("conversation not found"))
	}

	if !slices.Contains(c.members, senderId) {
		return chatprovider.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("sender is not a member of the conversation"))
	}

	message := chatprovider.Message{
		Id:             gonanoid.Must(),
		ConversationId: conversationId,
		SenderId:       senderId,
		Text:           text,
		CreateTime:     p.now(),
	}

	c.messages = append(c.messages, message)
	c.lastMessageAt = message.CreateTime
	for _, member := range c.members {
		if member != senderId {
			c.unread[member]++
		}
	}

	return message, nil
}

// Messages returns the history of a conversation, oldest first.
func (p *Provider) Messages(conversationId string) []chatprovider.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.conversations[conversationId]
	if !ok {
		return nil
	}

	return slices.Clone(c.messages)
}

func (p *Provider) summaryLocked(c *conversation) chatprovider.Conversation {
	members := make([]chatprovider.Member, 0, len(c.members))
	for _, userId := range c.members {
		user := p.users[userId]
		members = append(members, chatprovider.Member{
			UserId:      userId,
			Name:        user.Name,
			Image:       user.Image,
			UnreadCount: c.unread[userId],
		})
	}

	return chatprovider.Conversation{
		Id:            c.id,
		Members:       members,
		CreateTime:    c.createTime,
		LastMessageAt: c.lastMessageAt,
	}
}
