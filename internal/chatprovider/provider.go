// Package chatprovider describes the chat provider this service sits next to.
// The provider owns conversations, messages and unread counts; the rest of
// the repository only reads them, apart from the calls a chat client makes
// on a user's behalf (open, mark read, send).
package chatprovider

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

const DefaultUnreadPageSize = 30

type User struct {
	Id    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

type Member struct {
	UserId      string `json:"userId"`
	Name        string `json:"name,omitempty"`
	Image       string `json:"image,omitempty"`
	UnreadCount int    `json:"unreadCount"`
}

type Conversation struct {
	Id            string    `json:"id"`
	Members       []Member  `json:"members"`
	CreateTime    time.Time `json:"createTime"`
	LastMessageAt time.Time `json:"lastMessageAt,omitzero"`
}

func (c Conversation) UnreadCountFor(userId string) int {
	for _, member := range c.Members {
		if member.UserId == userId {
			return member.UnreadCount
		}
	}

	return 0
}

// Peer returns the first member that is not userId.
func (c Conversation) Peer(userId string) (Member, bool) {
	for _, member := range c.Members {
		if member.UserId != userId {
			return member, true
		}
	}

	return Member{}, false
}

func (c Conversation) HasMember(userId string) bool {
	return slices.ContainsFunc(c.Members, func(m Member) bool {
		return m.UserId == userId
	})
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversationId"`
	SenderId       string    `json:"senderId"`
	Text           string    `json:"text"`
	CreateTime     time.Time `json:"createTime"`
}

type ConversationFilter struct {
	Member                 string
	UnreadCountGreaterThan int
}

func (f ConversationFilter) Matches(c Conversation) bool {
	if f.Member == "" || !c.HasMember(f.Member) {
		return false
	}

	return c.UnreadCountFor(f.Member) > f.UnreadCountGreaterThan
}

type Sort int

const (
	SortLastMessageDesc Sort = iota
	SortCreateTimeDesc
)

type Provider interface {
	IssueAccessToken(userId string) (string, error)
	UpsertUser(ctx context.Context, user User) error
	QueryConversations(ctx context.Context, filter ConversationFilter, sort Sort, limit int) ([]Conversation, error)
	OpenOrCreateConversation(ctx context.Context, members []string) (Conversation, error)
	MarkRead(ctx context.Context, conversationId string, userId string) error
	SendMessage(ctx context.Context, conversationId string, senderId string, text string) (Message, error)
}

// ConversationIdSeparator joins member ids into a conversation id. Member
// ids may not contain it, otherwise two member sets could share an id.
const ConversationIdSeparator = "-"

var (
	ErrTooFewMembers   = errors.New("a conversation needs at least two distinct members")
	ErrInvalidMemberId = errors.New("member id is empty or contains the conversation id separator")
)

// ConversationId is deterministic for a set of members, so both sides of a
// direct chat open the same conversation.
func ConversationId(members []string) string {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	return strings.Join(sorted, ConversationIdSeparator)
}

// NormalizeMembers sorts and dedupes members, rejecting sets whose
// conversation id would be ambiguous.
func NormalizeMembers(members []string) ([]string, error) {
	normalized := slices.Compact(slices.Sorted(slices.Values(members)))
	if len(normalized) < 2 {
		return nil, ErrTooFewMembers
	}

	for _, member := range normalized {
		if member == "" || strings.Contains(member, ConversationIdSeparator) {
			return nil, ErrInvalidMemberId
		}
	}

	return normalized, nil
}
