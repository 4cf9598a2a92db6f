package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/streamify/internal/friendship"
	"github.com/goevery/streamify/internal/ierr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Request struct {
	Id          bson.ObjectID `bson:"_id"`
	SenderId    string        `bson:"senderId"`
	RecipientId string        `bson:"recipientId"`
	Status      string        `bson:"status"`
	CreateTime  time.Time     `bson:"createTime"`
	UpdateTime  time.Time     `bson:"updateTime"`
}

func (r Request) toFriendRequest() friendship.Request {
	return friendship.Request{
		Id:          r.Id.Hex(),
		SenderId:    r.SenderId,
		RecipientId: r.RecipientId,
		Status:      friendship.Status(r.Status),
		CreateTime:  r.CreateTime,
		UpdateTime:  r.UpdateTime,
	}
}

type Store struct {
	collection *mongo.Collection
}

func NewStore(client *mongo.Client, databaseName string) *Store {
	database := client.Database(databaseName)
	collection := database.Collection("friendRequests")

	return &Store{
		collection,
	}
}

func (s *Store) Setup(ctx context.Context) error {
	recipientIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "recipientId", Value: 1},
			{Key: "status", Value: 1},
			{Key: "createTime", Value: 1},
		},
	}

	senderIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "senderId", Value: 1},
			{Key: "status", Value: 1},
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{recipientIndexModel, senderIndexModel})

	return err
}

func (s *Store) Create(ctx context.Context, senderId string, recipientId string) (friendship.Request, error) {
	if senderId == recipientId {
		return friendship.Request{},
			ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("cannot send a friend request to yourself"))
	}

	existing, err := s.collection.CountDocuments(ctx, bson.M{
		"$or": bson.A{
			bson.M{"senderId": senderId, "recipientId": recipientId},
			bson.M{"senderId": recipientId, "recipientId": senderId},
		},
	})
	if err != nil {
		return friendship.Request{}, err
	}

	if existing > 0 {
		return friendship.Request{},
			ierr.New(ierr.ErrorCodeAlreadyExists, errors.New("a friend request already exists between these users"))
	}

	now := time.Now()
	document := Request{
		Id:          bson.NewObjectID(),
		SenderId:    senderId,
		RecipientId: recipientId,
		Status:      string(friendship.StatusPending),
		CreateTime:  now,
		UpdateTime:  now,
	}

	_, err = s.collection.InsertOne(ctx, document)
	if err != nil {
		return friendship.Request{}, err
	}

	return document.toFriendRequest(), nil
}

func (s *Store) ListForUser(ctx context.Context, userId string) (friendship.Requests, error) {
	incoming, err := s.find(ctx,
		bson.M{"recipientId": userId, "status": string(friendship.StatusPending)},
		options.Find().SetSort(bson.D{{Key: "createTime", Value: 1}}),
	)
	if err != nil {
		return friendship.Requests{}, err
	}

	accepted, err := s.find(ctx,
		bson.M{"senderId": userId, "status": string(friendship.StatusAccepted)},
		options.Find().SetSort(bson.D{{Key: "updateTime", Value: -1}}),
	)
	if err != nil {
		return friendship.Requests{}, err
	}

	return friendship.Requests{
		Incoming: incoming,
		Accepted: accepted,
	}, nil
}

func (s *Store) Accept(ctx context.Context, requestId string, userId string) (friendship.Request, error) {
	objectId, err := bson.ObjectIDFromHex(requestId)
	if err != nil {
		return friendship.Request{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("friend request not found"))
	}

	var document Request
	err = s.collection.FindOne(ctx, bson.M{"_id": objectId}).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return friendship.Request{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("friend request not found"))
	}
	if err != nil {
		return friendship.Request{}, err
	}

	if document.RecipientId != userId {
		return friendship.Request{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("only the recipient can accept a friend request"))
	}

	now := time.Now()
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": objectId, "status": string(friendship.StatusPending)},
		bson.M{"$set": bson.M{"status": string(friendship.StatusAccepted), "updateTime": now}},
	)
	if err != nil {
		return friendship.Request{}, err
	}

	if result.MatchedCount == 0 {
		return friendship.Request{},
			ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("friend request is not pending"))
	}

	document.Status = string(friendship.StatusAccepted)
	document.UpdateTime = now

	return document.toFriendRequest(), nil
}

func (s *Store) Friends(ctx context.Context, userId string) ([]string, error) {
	requests, err := s.find(ctx,
		bson.M{
			"status": string(friendship.StatusAccepted),
			"$or": bson.A{
				bson.M{"senderId": userId},
				bson.M{"recipientId": userId},
			},
		},
		options.Find().SetSort(bson.D{{Key: "updateTime", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}

	friends := make([]string, 0, len(requests))
	for _, request := range requests {
		if request.SenderId == userId {
			friends = append(friends, request.RecipientId)
		} else {
			friends = append(friends, request.SenderId)
		}
	}

	return friends, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]friendship.Request, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var documents []Request
	err = cursor.All(ctx, &documents)
	if err != nil {
		return nil, err
	}

	requests := make([]friendship.Request, len(documents))
	for i, document := range documents {
		requests[i] = document.toFriendRequest()
	}

	return requests, nil
}
