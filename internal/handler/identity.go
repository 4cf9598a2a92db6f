package handler

import (
	"context"
	"errors"
	"regexp"

	"github.com/goevery/streamify/internal/auth"
	"github.com/goevery/streamify/internal/ierr"
	"github.com/goevery/streamify/internal/presence"
)

type IdentityValidator struct {
	identityRegex *regexp.Regexp
}

func NewIdentityValidator() *IdentityValidator {
	return &IdentityValidator{
		identityRegex: regexp.MustCompile(`^[\w.@:]{1,128}$`),
	}
}

func (v *IdentityValidator) Validate(userId string) error {
	if !presence.IsValidIdentity(userId) || !v.identityRegex.MatchString(userId) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid user id"))
	}

	return nil
}

func authenticated(ctx context.Context) (*auth.Authentication, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	return authentication, nil
}
