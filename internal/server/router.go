package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/ierr"
	"github.com/goevery/streamify/internal/rpc"
	"go.uber.org/zap"
)

type Router struct {
	logger *zap.Logger

	heartbeatHandler       handler.HeartbeatHandlerInterface
	notifyRecipientHandler handler.NotifyRecipientHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	notifyRecipientHandler handler.NotifyRecipientHandlerInterface,
) *Router {
	return &Router{
		logger,
		heartbeatHandler,
		notifyRecipientHandler,
	}
}

// RouteRequest runs request and builds the reply. It returns nil for
// notifications, which are never answered, even on failure.
func (r *Router) RouteRequest(ctx context.Context, request rpc.Request) *rpc.Response {
	response, err := r.Handle(ctx, request)
	if err != nil {
		if !request.ReplyExpected() {
			r.logger.Debug("notification failed",
				zap.String("method", request.Method),
				zap.Error(err))

			return nil
		}

		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	if !request.ReplyExpected() {
		return nil
	}

	rawJson, err := json.Marshal(response)
	if err != nil {
		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	payload := json.RawMessage(rawJson)
	reply := request.Reply(&payload)

	return &reply
}

func (r *Router) Handle(ctx context.Context, request rpc.Request) (any, error) {
	switch request.Method {
	case rpc.MethodHeartbeat:
		return r.heartbeatHandler.Handle(), nil
	case rpc.MethodNotifyRecipient:
		var notifyReq handler.NotifyRecipientRequest
		if err := rpc.DecodeParams(request.Params, &notifyReq); err != nil {
			return nil, err
		}

		return r.notifyRecipientHandler.Handle(ctx, notifyReq)
	default:
		return nil, rpc.NewError(rpc.ErrorCodeMethodNotFound, errors.New("method not found: "+request.Method))
	}
}

func (r *Router) mapError(err error) rpc.Error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		if handlerErr.Code == ierr.ErrorCodeInvalidArgument {
			return rpc.NewError(rpc.ErrorCodeInvalidParams, errors.New(handlerErr.Message))
		}

		if handlerErr.Code != ierr.ErrorCodeInternal {
			return rpc.Error{Code: rpc.ErrorCode(handlerErr.Code), Message: handlerErr.Message}
		}
	}

	r.logger.Error("error in rpc handler", zap.Error(err))

	return rpc.NewError(rpc.ErrorCodeInternalError, errors.New("internal error"))
}
