package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
	"lendingledger/internal/session"
)

// requesterLookup resolves the user behind the request session. The record
// is read on every call so role changes apply immediately.
type requesterLookup struct {
	users repository.UserRepository
}

func (l requesterLookup) current(ctx context.Context) (*model.User, error) {
	s, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	user, err := l.users.FindByUsername(ctx, s.Username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Token outlived its user.
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	return user, nil
}

func (l requesterLookup) admin(ctx context.Context) (*model.User, error) {
	user, err := l.current(ctx)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, apperrors.ErrNotAllowed
	}
	return user, nil
}
