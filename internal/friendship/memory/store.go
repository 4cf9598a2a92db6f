package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/goevery/streamify/internal/friendship"
	"github.com/goevery/streamify/internal/ierr"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	requests []friendship.Request
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		now: time.Now,
	}
}

func (s *Store) Create(ctx context.Context, senderId string, recipientId string) (friendship.Request, error) {
	if senderId == recipientId {
		return friendship.Request{},
			ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("cannot send a friend request to yourself"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, request := range s.requests {
		if betweenPair(request, senderId, recipientId) {
			return friendship.Request{},
				ierr.New(ierr.ErrorCodeAlreadyExists, errors.New("a friend request already exists between these users"))
		}
	}

	now := s.now()
	request := friendship.Request{
		Id:          uuid.NewString(),
		SenderId:    senderId,
		RecipientId: recipientId,
		Status:      friendship.StatusPending,
		CreateTime:  now,
		UpdateTime:  now,
	}
	s.requests = append(s.requests, request)

	return request, nil
}

func (s *Store) ListForUser(ctx context.Context, userId string) (friendship.Requests, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := friendship.Requests{
		Incoming: []friendship.Request{},
		Accepted: []friendship.Request{},
	}

	for _, request := range s.requests {
		switch {
		case request.Status == friendship.StatusPending && request.RecipientId == userId:
			result.Incoming = append(result.Incoming, request)
		case request.Status == friendship.StatusAccepted && request.SenderId == userId:
			result.Accepted = append(result.Accepted, request)
		}
	}

	slices.SortStableFunc(result.Incoming, func(a, b friendship.Request) int {
		return a.CreateTime.Compare(b.CreateTime)
	})

	return result, nil
}

func (s *Store) Accept(ctx context.Context, requestId string, userId string) (friendship.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, request := range s.requests {
		if request.Id != requestId {
			continue
		}

		if request.RecipientId != userId {
			return friendship.Request{},
				ierr.New(ierr.ErrorCodePermissionDenied, errors.New("only the recipient can accept a friend request"))
		}

		if request.Status != friendship.StatusPending {
			return friendship.Request{},
				ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("friend request is not pending"))
		}

		request.Status = friendship.StatusAccepted
		request.UpdateTime = s.now()
		s.requests[i] = request

		return request, nil
	}

	return friendship.Request{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("friend request not found"))
}

func (s *Store) Friends(ctx context.Context, userId string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	friends := []string{}
	for _, request := range s.requests {
		if request.Status != friendship.StatusAccepted {
			continue
		}

		switch userId {
		case request.SenderId:
			friends = append(friends, request.RecipientId)
		case request.RecipientId:
			friends = append(friends, request.SenderId)
		}
	}

	slices.Sort(friends)

	return friends, nil
}

func betweenPair(request friendship.Request, a string, b string) bool {
	return (request.SenderId == a && request.RecipientId == b) ||
		(request.SenderId == b && request.RecipientId == a)
}
