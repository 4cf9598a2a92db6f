// Package friendship is the friend-request collaborator as seen from the
// notification layer: list, create and accept.
package friendship

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

type Request struct {
	Id          string    `json:"id"`
	SenderId    string    `json:"senderId"`
	RecipientId string    `json:"recipientId"`
	Status      Status    `json:"status"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

// Requests is what a user sees on the notifications page: pending requests
// addressed to them, oldest first, and their own requests that were accepted.
type Requests struct {
	Incoming []Request `json:"incomingReqs"`
	Accepted []Request `json:"acceptedReqs"`
}

type Store interface {
	Create(ctx context.Context, senderId string, recipientId string) (Request, error)
	ListForUser(ctx context.Context, userId string) (Requests, error)
	Accept(ctx context.Context, requestId string, userId string) (Request, error)
	Friends(ctx context.Context, userId string) ([]string, error)
}
