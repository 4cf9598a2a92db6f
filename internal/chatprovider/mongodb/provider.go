package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/ierr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Member struct {
	UserId      string `bson:"userId"`
	UnreadCount int    `bson:"unreadCount"`
}

type Conversation struct {
	Id            string    `bson:"_id"`
	Members       []Member  `bson:"members"`
	CreateTime    time.Time `bson:"createTime"`
	LastMessageAt time.Time `bson:"lastMessageAt"`
}

type Message struct {
	Id             bson.ObjectID `bson:"_id"`
	ConversationId string        `bson:"conversationId"`
	SenderId       string        `bson:"senderId"`
	Text           string        `bson:"text"`
	CreateTime     time.Time     `bson:"createTime"`
}

type User struct {
	Id    string `bson:"_id"`
	Name  string `bson:"name"`
	Image string `bson:"image"`
}

// Provider stores conversations in MongoDB, one document per conversation
// with the per-member unread counters embedded.
type Provider struct {
	*chatprovider.TokenIssuer

	conversations *mongo.Collection
	messages      *mongo.Collection
	users         *mongo.Collection
}

func NewProvider(client *mongo.Client, databaseName string, tokenIssuer *chatprovider.TokenIssuer) *Provider {
	database := client.Database(databaseName)

	return &Provider{
		TokenIssuer:   tokenIssuer,
		conversations: database.Collection("conversations"),
		messages:      database.Collection("messages"),
		users:         database.Collection("users"),
	}
}

func (p *Provider) Setup(ctx context.Context) error {
	memberIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "members.userId", Value: 1},
			{Key: "lastMessageAt", Value: -1},
		},
	}

	_, err := p.conversations.Indexes().CreateOne(ctx, memberIndexModel)
	if err != nil {
		return err
	}

	messageIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "conversationId", Value: 1},
			{Key: "_id", Value: -1},
		},
	}

	_, err = p.messages.Indexes().CreateOne(ctx, messageIndexModel)

	return err
}

func (p *Provider) UpsertUser(ctx context.Context, user chatprovider.User) error {
	if user.Id == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("user id is required"))
	}

	_, err := p.users.UpdateOne(ctx,
		bson.M{"_id": user.Id},
		bson.M{"$set": bson.M{"name": user.Name, "image": user.Image}},
		options.UpdateOne().SetUpsert(true),
	)

	return err
}

func (p *Provider) QueryConversations(
	ctx context.Context,
	filter chatprovider.ConversationFilter,
	sort chatprovider.Sort,
	limit int,
) ([]chatprovider.Conversation, error) {
	if filter.Member == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("member filter is required"))
	}

	query := bson.M{
		"members": bson.M{
			"$elemMatch": bson.M{
				"userId":      filter.Member,
				"unreadCount": bson.M{"$gt": filter.UnreadCountGreaterThan},
			},
		},
	}

	sortField := "lastMessageAt"
	if sort == chatprovider.SortCreateTimeDesc {
		sortField = "createTime"
	}

	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := p.conversations.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	var documents []Conversation
	err = cursor.All(ctx, &documents)
	if err != nil {
		return nil, err
	}

	users, err := p.loadUsers(ctx, documents)
	if err != nil {
		return nil, err
	}

	conversations := make([]chatprovider.Conversation, len(documents))
	for i, document := range documents {
		conversations[i] = toConversation(document, users)
	}

	return conversations, nil
}

func (p *Provider) OpenOrCreateConversation(ctx context.Context, members []string) (chatprovider.Conversation, error) {
	memberIds, err := chatprovider.NormalizeMembers(members)
	if err != nil {
		return chatprovider.Conversation{}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	id := chatprovider.ConversationId(memberIds)

	documentMembers := make([]Member, len(memberIds))
	for i, memberId := range memberIds {
		documentMembers[i] = Member{UserId: memberId}
	}

	_, err = p.conversations.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": bson.M{
			"members":    documentMembers,
			"createTime": time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	var document Conversation
	err = p.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&document)
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	users, err := p.loadUsers(ctx, []Conversation{document})
	if err != nil {
		return chatprovider.Conversation{}, err
	}

	return toConversation(document, users), nil
}

func (p *Provider) MarkRead(ctx context.Context, conversationId string, userId string) error {
	result, err := p.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationId, "members.userId": userId},
		bson.M{"$set": bson.M{"members.$.unreadCount": 0}},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("conversation not found"))
	}

	return nil
}

func (p *Provider) SendMessage(ctx context.Context, conversationId string, senderId string, text string) (chatprovider.Message, error) {
	createTime := time.Now()

	result, err := p.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationId, "members.userId": senderId},
		bson.M{
			"$inc": bson.M{"members.$[other].unreadCount": 1},
			"$set": bson.M{"lastMessageAt": createTime},
		},
		options.UpdateOne().SetArrayFilters([]any{
			bson.M{"other.userId": bson.M{"$ne": senderId}},
		}),
	)
	if err != nil {
		return chatprovider.Message{}, err
	}

	if result.MatchedCount == 0 {
		return chatprovider.Message{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("conversation not found"))
	}

	document := Message{
		Id:             bson.NewObjectID(),
		ConversationId: conversationId,
		SenderId:       senderId,
		Text:           text,
		CreateTime:     createTime,
	}

	_, err = p.messages.InsertOne(ctx, document)
	if err != nil {
		return chatprovider.Message{}, err
	}

	return chatprovider.Message{
		Id:             document.Id.Hex(),
		ConversationId: conversationId,
		SenderId:       senderId,
		Text:           text,
		CreateTime:     createTime,
	}, nil
}

func (p *Provider) loadUsers(ctx context.Context, documents []Conversation) (map[string]User, error) {
	var ids []string
	for _, document := range documents {
		for _, member := range document.Members {
			ids = append(ids, member.UserId)
		}
	}

	users := make(map[string]User)
	if len(ids) == 0 {
		return users, nil
	}

	cursor, err := p.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}

	var found []User
	err = cursor.All(ctx, &found)
	if err != nil {
		return nil, err
	}

	for _, user := range found {
		users[user.Id] = user
	}

	return users, nil
}

func toConversation(document Conversation, users map[string]User) chatprovider.Conversation {
	members := make([]chatprovider.Member, len(document.Members))
	for i, member := range document.Members {
		user := users[member.UserId]
		members[i] = chatprovider.Member{
			UserId:      member.UserId,
			Name:        user.Name,
			Image:       user.Image,
			UnreadCount: member.UnreadCount,
		}
	}

	return chatprovider.Conversation{
		Id:            document.Id,
		Members:       members,
		CreateTime:    document.CreateTime,
		LastMessageAt: document.LastMessageAt,
	}
}
