package rpc

import (
	"encoding/json"
	"errors"
)

const (
	MethodHeartbeat       = "heartbeat"
	MethodNotifyRecipient = "notify-recipient"

	MethodWake          = "wake"
	MethodFriendRequest = "friend-request"
)

// Request is sent in both directions. A request without an id is a
// notification and is never answered.
type Request struct {
	Id     string           `json:"id,omitempty"`
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params,omitempty"`
}

func NewNotification(method string, params any) (Request, error) {
	if params == nil {
		params = struct{}{}
	}

	rawJson, err := json.Marshal(params)
	if err != nil {
		return Request{}, err
	}

	payload := json.RawMessage(rawJson)

	return Request{
		Method: method,
		Params: &payload,
	}, nil
}

func (r Request) ReplyExpected() bool {
	return r.Id != ""
}

func (r Request) Reply(result *json.RawMessage) Response {
	return Response{
		RequestId: r.Id,
		Result:    result,
	}
}

func (r Request) ReplyWithError(err Error) Response {
	return Response{
		RequestId: r.Id,
		Error:     &err,
	}
}

type Response struct {
	RequestId string           `json:"requestId,omitempty"`
	Result    *json.RawMessage `json:"result,omitempty"`
	Error     *Error           `json:"error,omitempty"`
}

func (r Response) IsFailure() bool {
	return r.Error != nil
}

// Frame is the union of Request and Response used by readers that do not
// know in advance which one arrives next.
type Frame struct {
	Id        string           `json:"id,omitempty"`
	Method    string           `json:"method,omitempty"`
	Params    *json.RawMessage `json:"params,omitempty"`
	RequestId string           `json:"requestId,omitempty"`
	Result    *json.RawMessage `json:"result,omitempty"`
	Error     *Error           `json:"error,omitempty"`
}

func (f Frame) IsRequest() bool {
	return f.Method != ""
}

func (f Frame) Request() Request {
	return Request{
		Id:     f.Id,
		Method: f.Method,
		Params: f.Params,
	}
}

func (f Frame) Response() Response {
	return Response{
		RequestId: f.RequestId,
		Result:    f.Result,
		Error:     f.Error,
	}
}

type ErrorCode string

const (
	ErrorCodeParseError     ErrorCode = "ParseError"
	ErrorCodeInvalidRequest ErrorCode = "InvalidRequest"
	ErrorCodeMethodNotFound ErrorCode = "MethodNotFound"
	ErrorCodeInvalidParams  ErrorCode = "InvalidParams"
	ErrorCodeInternalError  ErrorCode = "InternalError"
)

type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`

	cause error
}

func NewError(code ErrorCode, cause error) Error {
	return Error{
		Code:    code,
		Message: cause.Error(),
		cause:   cause,
	}
}

func (e Error) Error() string {
	if e.cause == nil {
		return string(e.Code) + ": " + e.Message
	}

	return string(e.Code) + ": " + e.cause.Error()
}

func (e Error) Unwrap() error {
	return e.cause
}

func DecodeParams(params *json.RawMessage, v any) error {
	if params == nil {
		return NewError(ErrorCodeInvalidParams, errors.New("missing params"))
	}

	if err := json.Unmarshal(*params, v); err != nil {
		return NewError(ErrorCodeInvalidParams, errors.New("invalid params: "+err.Error()))
	}

	return nil
}
