package handler

import (
	"context"
)

type NotifyRecipientRequest struct {
	RecipientId string `json:"recipientId"`
}

// NotifyRecipientResponse is informational only. Senders must not treat an
// undelivered wake as a failure.
type NotifyRecipientResponse struct {
	Delivered bool `json:"delivered"`
}

type Waker interface {
	Wake(recipientId string) bool
}

type NotifyRecipientHandlerInterface interface {
	Handle(ctx context.Context, req NotifyRecipientRequest) (NotifyRecipientResponse, error)
}

type NotifyRecipientHandler struct {
	waker Waker
}

func NewNotifyRecipientHandler(waker Waker) *NotifyRecipientHandler {
	return &NotifyRecipientHandler{
		waker,
	}
}

// Handle never fails: membership is not checked here, the chat provider
// already decided who may talk to whom.
func (h *NotifyRecipientHandler) Handle(ctx context.Context, req NotifyRecipientRequest) (NotifyRecipientResponse, error) {
	return NotifyRecipientResponse{
		Delivered: h.waker.Wake(req.RecipientId),
	}, nil
}
