package handler

import (
	"context"
	"time"

	"github.com/c-pro/geche"
	"github.com/goevery/streamify/internal/chatprovider"
	"github.com/goevery/streamify/internal/ierr"
)

type TokenResponse struct {
	Token  string `json:"token"`
	APIKey string `json:"apiKey,omitempty"`
}

type TokenHandlerInterface interface {
	Handle(ctx context.Context) (TokenResponse, error)
}

// TokenHandler hands out chat provider access tokens. Tokens are cached per
// user for half their lifetime so reconnecting clients reuse them.
type TokenHandler struct {
	provider chatprovider.Provider
	apiKey   string
	tokens   geche.Geche[string, string]
}

func NewTokenHandler(ctx context.Context, provider chatprovider.Provider, apiKey string, tokenTTL time.Duration) *TokenHandler {
	cacheTTL := time.Hour
	if tokenTTL > 0 {
		cacheTTL = tokenTTL / 2
	}

	return &TokenHandler{
		provider: provider,
		apiKey:   apiKey,
		tokens:   geche.NewMapTTLCache[string, string](ctx, cacheTTL, time.Minute),
	}
}

func (h *TokenHandler) Handle(ctx context.Context) (TokenResponse, error) {
	authentication, err := authenticated(ctx)
	if err != nil {
		return TokenResponse{}, err
	}

	if token, err := h.tokens.Get(authentication.Subject); err == nil {
		return TokenResponse{Token: token, APIKey: h.apiKey}, nil
	}

	err = h.provider.UpsertUser(ctx, chatprovider.User{
		Id:    authentication.Subject,
		Name:  sanitizeText(authentication.Name),
		Image: authentication.Picture,
	})
	if err != nil {
		return TokenResponse{}, ierr.Internal(err)
	}

	token, err := h.provider.IssueAccessToken(authentication.Subject)
	if err != nil {
		return TokenResponse{}, ierr.Internal(err)
	}

	h.tokens.Set(authentication.Subject, token)

	return TokenResponse{Token: token, APIKey: h.apiKey}, nil
}
