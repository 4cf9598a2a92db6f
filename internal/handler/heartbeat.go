package handler

import "time"

type HeartbeatResponse struct {
	Timestamp time.Time `json:"timestamp"`
}

type HeartbeatHandlerInterface interface {
	Handle() HeartbeatResponse
}

type HeartbeatHandler struct {
	now func() time.Time
}

func NewHeartbeatHandler() *HeartbeatHandler {
	return &HeartbeatHandler{
		now: time.Now,
	}
}

func (h *HeartbeatHandler) Handle() HeartbeatResponse {
	return HeartbeatResponse{
		Timestamp: h.now(),
	}
}
