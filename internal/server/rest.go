package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/goevery/streamify/internal/auth"
	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger        *zap.Logger
	authenticator *auth.Authenticator
	originChecker *OriginChecker

	tokenHandler               handler.TokenHandlerInterface
	unreadConversationsHandler handler.UnreadConversationsHandlerInterface
	openConversationHandler    handler.OpenConversationHandlerInterface
	sendMessageHandler         handler.SendMessageHandlerInterface
	startCallHandler           handler.StartCallHandlerInterface
	friendRequestsHandler      handler.FriendRequestsHandlerInterface
	sendFriendRequestHandler   handler.SendFriendRequestHandlerInterface
	acceptFriendRequestHandler handler.AcceptFriendRequestHandlerInterface
	friendsHandler             handler.FriendsHandlerInterface
}

type RESTHandlers struct {
	Token               handler.TokenHandlerInterface
	UnreadConversations handler.UnreadConversationsHandlerInterface
	OpenConversation    handler.OpenConversationHandlerInterface
	SendMessage         handler.SendMessageHandlerInterface
	StartCall           handler.StartCallHandlerInterface
	FriendRequests      handler.FriendRequestsHandlerInterface
	SendFriendRequest   handler.SendFriendRequestHandlerInterface
	AcceptFriendRequest handler.AcceptFriendRequestHandlerInterface
	Friends             handler.FriendsHandlerInterface
}

func NewRESTServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	originChecker *OriginChecker,
	handlers RESTHandlers,
) *RESTServer {
	return &RESTServer{
		logger:                     logger,
		authenticator:              authenticator,
		originChecker:              originChecker,
		tokenHandler:               handlers.Token,
		unreadConversationsHandler: handlers.UnreadConversations,
		openConversationHandler:    handlers.OpenConversation,
		sendMessageHandler:         handlers.SendMessage,
		startCallHandler:           handlers.StartCall,
		friendRequestsHandler:      handlers.FriendRequests,
		sendFriendRequestHandler:   handlers.SendFriendRequest,
		acceptFriendRequestHandler: handlers.AcceptFriendRequest,
		friendsHandler:             handlers.Friends,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.originChecker.CORS(), s.authenticate)

	api.HandleFunc("/chat/token", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.tokenHandler.Handle(r.Context())
		s.reply(w, r, http.StatusOK, response, err)
	}).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/chat/unread-conversations", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.unreadConversationsHandler.Handle(r.Context())
		s.reply(w, r, http.StatusOK, response, err)
	}).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		var req handler.OpenConversationRequest
		if !s.decode(w, r, &req) {
			return
		}

		response, err := s.openConversationHandler.Handle(r.Context(), req)
		s.reply(w, r, http.StatusOK, response, err)
	}).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/chat/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req handler.SendMessageRequest
		if !s.decode(w, r, &req) {
			return
		}
		req.ConversationId = mux.Vars(r)["id"]

		response, err := s.sendMessageHandler.Handle(r.Context(), req)
		s.reply(w, r, http.StatusCreated, response, err)
	}).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/chat/conversations/{id}/call", func(w http.ResponseWriter, r *http.Request) {
		req := handler.StartCallRequest{ConversationId: mux.Vars(r)["id"]}

		response, err := s.startCallHandler.Handle(r.Context(), req)
		s.reply(w, r, http.StatusCreated, response, err)
	}).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.friendRequestsHandler.Handle(r.Context())
		s.reply(w, r, http.StatusOK, response, err)
	}).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		var req handler.SendFriendRequestRequest
		if !s.decode(w, r, &req) {
			return
		}

		response, err := s.sendFriendRequestHandler.Handle(r.Context(), req)
		s.reply(w, r, http.StatusCreated, response, err)
	}).Methods(http.MethodPost)

	api.HandleFunc("/friends/requests/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
		req := handler.AcceptFriendRequestRequest{RequestId: mux.Vars(r)["id"]}

		response, err := s.acceptFriendRequestHandler.Handle(r.Context(), req)
		s.reply(w, r, http.StatusOK, response, err)
	}).Methods(http.MethodPut, http.MethodOptions)

	api.HandleFunc("/friends", func(w http.ResponseWriter, r *http.Request) {
		response, err := s.friendsHandler.Handle(r.Context())
		s.reply(w, r, http.StatusOK, response, err)
	}).Methods(http.MethodGet, http.MethodOptions)
}

func (s *RESTServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			s.writeError(w, r, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing bearer token")))
			return
		}

		authentication, err := s.authenticator.AuthenticateJWT(token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	})
}

func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		s.writeError(w, r, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return false
	}

	return true
}

func (s *RESTServer) reply(w http.ResponseWriter, r *http.Request, status int, response any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, status, response)
}

func (s *RESTServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	handlerErr := ierr.From(err)

	if handlerErr.Code == ierr.ErrorCodeInternal {
		s.logger.Error("failed to handle request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	writeJSON(w, ierr.HTTPStatus(handlerErr.Code), handlerErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
